package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"rpanode/internal/config"
)

func TestLoadDefaultConfigUsesEnvBackendAndExpandsPaths(t *testing.T) {
	t.Setenv("RPANODE_BACKEND_URL", "https://backend.test/")
	t.Setenv("GOOGLE_VISION_API_KEY", "vision-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Backend.URL != "https://backend.test" {
		t.Fatalf("expected trailing slash trimmed from env backend url, got %q", cfg.Backend.URL)
	}
	wantState := filepath.Join(tempHome, ".local", "share", "rpanode")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.OCR.APIKey != "vision-key" {
		t.Fatalf("expected OCR key from env, got %q", cfg.OCR.APIKey)
	}
	if !strings.HasPrefix(cfg.Artifacts.BucketURL, "file://") {
		t.Fatalf("expected file bucket fallback, got %q", cfg.Artifacts.BucketURL)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "rpanode.db") {
		t.Fatalf("unexpected database path %q", cfg.DatabasePath())
	}
}

func TestDefaultRescuePolicyMatchesObservedValues(t *testing.T) {
	cfg := config.Default()
	if cfg.Rescue.Attempts != 3 || cfg.Rescue.AttemptTimeout != 10 || cfg.Rescue.Retries != 1 || cfg.Rescue.SettleSeconds != 15 {
		t.Fatalf("unexpected rescue defaults: %+v", cfg.Rescue)
	}
	if strings.Join(cfg.Rescue.Keys, "+") != "alt+f4" {
		t.Fatalf("unexpected rescue keys: %v", cfg.Rescue.Keys)
	}
	if cfg.Workflow.ExtractionInterval != 3600 || cfg.Workflow.TaskTimeout != 7200 {
		t.Fatalf("unexpected workflow defaults: %+v", cfg.Workflow)
	}
}

func TestLoadFileNormalizesWorkflow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := config.Default()
	cfg.Backend.URL = "http://localhost:8080"
	cfg.Workflow.DisabledEMRTypes = []string{" baptist ", "BAPTIST", "", "jackson"}
	cfg.Rescue.Keys = []string{" ALT ", ""}
	cfg.Logging.Format = " JSON "
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to resolve, got %q exists=%v", resolved, exists)
	}
	if got := strings.Join(loaded.Workflow.DisabledEMRTypes, ","); got != "BAPTIST,JACKSON" {
		t.Fatalf("unexpected disabled types %q", got)
	}
	if got := strings.Join(loaded.Rescue.Keys, ","); got != "alt" {
		t.Fatalf("unexpected rescue keys %q", got)
	}
	if loaded.Logging.Format != "json" {
		t.Fatalf("expected lower-cased format, got %q", loaded.Logging.Format)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing backend", func(c *config.Config) { c.Backend.URL = "" }, "backend.url is required"},
		{"relative backend", func(c *config.Config) { c.Backend.URL = "backend" }, "absolute"},
		{"zero attempts", func(c *config.Config) { c.Rescue.Attempts = 0 }, "rescue.attempts"},
		{"negative retries", func(c *config.Config) { c.Rescue.Retries = -1 }, "rescue.retries"},
		{"zero interval", func(c *config.Config) { c.Workflow.ExtractionInterval = 0 }, "extraction_interval"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Backend.URL = "https://backend.test"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in %q", tc.want, err.Error())
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Backend.URL != "https://backend.example.com" {
		t.Fatalf("unexpected sample backend url %q", cfg.Backend.URL)
	}
}
