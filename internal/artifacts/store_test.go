package artifacts_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rpanode/internal/artifacts"
	"rpanode/internal/logging"
	"rpanode/internal/testsupport"
)

func TestUploadToMemoryBucketReturnsObjectURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := artifacts.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	link, err := store.Upload(context.Background(), "patient_list/doc-1/error_login_20250301_080000.png", []byte("png"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasSuffix(link, "patient_list/doc-1/error_login_20250301_080000.png") {
		t.Fatalf("unexpected link %q", link)
	}
	ok, err := store.Exists(context.Background(), "patient_list/doc-1/error_login_20250301_080000.png")
	if err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}
}

func TestUploadToFileBucketWritesFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(testsupport.BaseDir(cfg), "bucket")
	cfg.Artifacts.BucketURL = "file://" + filepath.ToSlash(dir)

	store, err := artifacts.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Upload(context.Background(), "/steward/unknown/error_menu_20250301_080000.png", []byte("data")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "steward", "unknown", "error_menu_20250301_080000.png"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(got) != "data" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestUploadKeepsLocalCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Artifacts.KeepLocalCopy = true

	store, err := artifacts.Open(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Upload(context.Background(), "a/b.png", []byte("x")); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ScreenshotDir, "a", "b.png")); err != nil {
		t.Fatalf("expected local copy: %v", err)
	}
}

func TestErrorKeyDefaults(t *testing.T) {
	at := time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC)
	if got := artifacts.ErrorKey("patient_list", "", "", at); got != "patient_list/unknown/error_unknown_step_20250301_140509.png" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := artifacts.ErrorKey("batch_summary", "42", "open_chart", at); got != "batch_summary/42/error_open_chart_20250301_140509.png" {
		t.Fatalf("unexpected key %q", got)
	}
}
