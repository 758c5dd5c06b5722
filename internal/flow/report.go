package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rpanode/internal/artifacts"
	"rpanode/internal/logging"
	"rpanode/internal/screen"
)

// ArtifactStore uploads screenshots and returns a shareable URL.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, png []byte) (string, error)
}

// ErrorSink receives error reports.
type ErrorSink interface {
	ReportError(ctx context.Context, hospitalType, message, screenshotURL string) error
}

// Failure describes what to report.
type Failure struct {
	FlowType string
	Hospital string
	DoctorID string
	Step     string
	Message  string
}

// Reporter captures a screenshot of the failure and posts it to the backend.
// Screenshot problems degrade the report to text only.
type Reporter struct {
	Screen    screen.Capturer
	Artifacts ArtifactStore
	Backend   ErrorSink
	Logger    *slog.Logger
	Now       func() time.Time
}

// Report sends f to the backend, returning the backend error if the report
// itself failed.
func (r *Reporter) Report(ctx context.Context, f Failure) error {
	logger := r.logger()
	url := r.capture(ctx, f)
	if r.Backend == nil {
		return nil
	}
	if err := r.Backend.ReportError(ctx, strings.ToUpper(f.Hospital), f.Message, url); err != nil {
		logging.WarnWithContext(logger, "error report not delivered", "error_report_failed",
			logging.String(logging.FieldHospital, f.Hospital),
			logging.Error(err),
			logging.String(logging.FieldImpact, "backend will not show this failure"),
			logging.String(logging.FieldErrorHint, "check backend reachability"),
		)
		return err
	}
	logger.Info("error reported",
		logging.String(logging.FieldEventType, "error_reported"),
		logging.String(logging.FieldStep, f.Step),
		logging.Bool("has_screenshot", url != ""),
	)
	return nil
}

func (r *Reporter) capture(ctx context.Context, f Failure) string {
	if r.Screen == nil || r.Artifacts == nil {
		return ""
	}
	logger := r.logger()
	png, err := r.Screen.Screenshot(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "failed to capture error screenshot", "error_screenshot_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "error report sent without screenshot"),
		)
		return ""
	}
	key := artifacts.ErrorKey(f.FlowType, f.DoctorID, f.Step, r.now())
	url, err := r.Artifacts.Upload(ctx, key, png)
	if err != nil {
		logging.WarnWithContext(logger, "failed to upload error screenshot", "error_screenshot_upload_failed",
			logging.String("key", key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "error report sent without screenshot"),
		)
		return ""
	}
	logger.Info("error screenshot uploaded", logging.String("key", key))
	return url
}

func (r *Reporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reporter) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
