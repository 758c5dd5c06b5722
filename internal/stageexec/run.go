package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rpanode/internal/flow"
	"rpanode/internal/logging"
	"rpanode/internal/services"
	"rpanode/internal/stage"
)

// FailureReporter delivers a stage failure to the backend.
type FailureReporter interface {
	Report(ctx context.Context, f flow.Failure) error
}

// Options controls one stage execution.
type Options struct {
	Logger   *slog.Logger
	Reporter FailureReporter
	Handler  stage.Handler
	Task     stage.Task
}

// Outcome describes a finished stage.
type Outcome struct {
	Stage    stage.Name
	Names    []string
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the stage finished without error.
func (o Outcome) Succeeded() bool { return o.Err == nil }

// Run executes one stage. Panics and errors never escape: they come back in
// the Outcome after being logged and, unless the flow already did so,
// reported to the backend.
func Run(ctx context.Context, opts Options) Outcome {
	task := opts.Task
	outcome := Outcome{Stage: task.Stage}
	if opts.Handler == nil {
		outcome.Err = fmt.Errorf("stage handler unavailable: %s", task.Stage)
		return outcome
	}

	stageCtx := services.WithStage(ctx, string(task.Stage))
	stageCtx = services.WithHospital(stageCtx, strings.ToUpper(task.Hospital))
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	logger := logging.WithContext(stageCtx, opts.Logger)

	logger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("doctor_id", task.DoctorID),
		logging.String("doctor_name", task.DoctorName),
		logging.Int("patient_names", len(task.PatientNames)),
	)

	started := time.Now()
	names, err := execute(stageCtx, opts.Handler, task)
	outcome.Duration = time.Since(started)
	if err != nil {
		outcome.Err = err
		handleFailure(stageCtx, logger, opts.Reporter, task, err)
		return outcome
	}
	outcome.Names = names

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("names", len(names)),
		logging.Duration("duration", outcome.Duration),
	)
	return outcome
}

func execute(ctx context.Context, handler stage.Handler, task stage.Task) (names []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", task.Stage.Label(), r)
		}
	}()
	return handler.Execute(ctx, task)
}

func handleFailure(ctx context.Context, logger *slog.Logger, reporter FailureReporter, task stage.Task, stageErr error) {
	details := services.Details(stageErr)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_message", message),
	}
	attrs = append(attrs, logging.ErrorAttrs(stageErr)...)
	logger.Error("stage failed", logging.Args(attrs...)...)

	if reporter == nil || flow.Reported(stageErr) {
		return
	}
	step := "ORCHESTRATOR"
	var flowErr *flow.Error
	if errors.As(stageErr, &flowErr) && flowErr.Step != "" {
		step = flowErr.Step
	}
	failure := flow.Failure{
		FlowType: string(task.Stage),
		Hospital: task.Hospital,
		DoctorID: task.DoctorID,
		Step:     step,
		Message:  fmt.Sprintf("%s failed: %s", task.Stage.Label(), stageErr.Error()),
	}
	if err := reporter.Report(context.WithoutCancel(ctx), failure); err != nil {
		logging.WarnWithContext(logger, "stage error report failed", "stage_report_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "backend has no record of this failure"),
		)
	}
}
