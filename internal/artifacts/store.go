package artifacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"rpanode/internal/config"
	"rpanode/internal/logging"
	"rpanode/internal/services"
)

// Store writes screenshots to a bucket.
type Store struct {
	bucket    *blob.Bucket
	bucketURL string
	expiry    time.Duration
	timeout   time.Duration
	localDir  string
	logger    *slog.Logger
}

// Open opens the configured bucket. file:// buckets get their directory
// created first.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	raw := strings.TrimSpace(cfg.Artifacts.BucketURL)
	if raw == "" {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "open", "bucket url not configured", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "open", "invalid bucket url", err)
	}
	if parsed.Scheme == "file" && parsed.Path != "" {
		if err := os.MkdirAll(filepath.FromSlash(parsed.Path), 0o755); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "artifacts", "open", "create bucket directory", err)
		}
	}
	bucket, err := blob.OpenBucket(ctx, raw)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "artifacts", "open", "open bucket "+raw, err)
	}

	s := &Store{
		bucket:    bucket,
		bucketURL: raw,
		expiry:    config.Seconds(cfg.Artifacts.SignedURLExpiry),
		timeout:   config.Seconds(cfg.Artifacts.UploadTimeoutSecs),
		logger:    logging.NewComponentLogger(logger, "artifacts"),
	}
	if cfg.Artifacts.KeepLocalCopy && parsed.Scheme != "file" {
		s.localDir = strings.TrimSpace(cfg.Paths.ScreenshotDir)
	}
	return s, nil
}

// Upload writes png under key and returns a link to it.
func (s *Store) Upload(ctx context.Context, key string, png []byte) (string, error) {
	if s == nil || s.bucket == nil {
		return "", services.Wrap(services.ErrConfiguration, "artifacts", "upload", "store not opened", nil)
	}
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "" {
		return "", services.Wrap(services.ErrValidation, "artifacts", "upload", "empty object key", nil)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.bucket.WriteAll(ctx, key, png, &blob.WriterOptions{ContentType: "image/png"}); err != nil {
		return "", services.Wrap(services.ErrNetwork, "artifacts", "upload", "write "+key, err)
	}
	s.writeLocal(key, png)

	link, err := s.bucket.SignedURL(ctx, key, &blob.SignedURLOptions{Expiry: s.expiry, Method: "GET"})
	if err != nil {
		if gcerrors.Code(err) != gcerrors.Unimplemented {
			s.logger.Debug("signed url unavailable", logging.String("key", key), logging.Error(err))
		}
		return s.objectURL(key), nil
	}
	return link, nil
}

// Exists reports whether key is present in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil || s.bucket == nil {
		return false, errors.New("artifact store not opened")
	}
	return s.bucket.Exists(ctx, key)
}

// Close releases the bucket.
func (s *Store) Close() error {
	if s == nil || s.bucket == nil {
		return nil
	}
	return s.bucket.Close()
}

func (s *Store) objectURL(key string) string {
	base := s.bucketURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimRight(base, "/") + "/" + key
}

func (s *Store) writeLocal(key string, data []byte) {
	if s.localDir == "" {
		return
	}
	target := filepath.Join(s.localDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		s.logger.Warn("local screenshot copy failed",
			logging.String(logging.FieldEventType, "artifact_local_copy_failed"),
			logging.String(logging.FieldErrorHint, "check paths.screenshot_dir permissions"),
			logging.String(logging.FieldImpact, "screenshot only available in the bucket"),
			logging.Error(err),
		)
		return
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		s.logger.Warn("local screenshot copy failed",
			logging.String(logging.FieldEventType, "artifact_local_copy_failed"),
			logging.String(logging.FieldErrorHint, "check paths.screenshot_dir permissions"),
			logging.String(logging.FieldImpact, "screenshot only available in the bucket"),
			logging.Error(err),
		)
	}
}

// ErrorKey builds the object key for a failure screenshot.
func ErrorKey(flowType, doctorID, step string, at time.Time) string {
	flowType = strings.TrimSpace(flowType)
	if flowType == "" {
		flowType = "flow"
	}
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		doctorID = "unknown"
	}
	step = strings.TrimSpace(step)
	if step == "" {
		step = "unknown_step"
	}
	return fmt.Sprintf("%s/%s/error_%s_%s.png", flowType, doctorID, step, at.Format("20060102_150405"))
}
