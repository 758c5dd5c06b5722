package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"rpanode/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Backend.URL = "http://backend.invalid"
	cfgVal.Backend.Hostname = "vdi-test-01"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ScreenshotDir = filepath.Join(base, "screenshots")
	cfgVal.Paths.Catalog = filepath.Join(base, "catalog.yaml")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Artifacts.BucketURL = "mem://"
	cfgVal.Workflow.KeepAwake = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackendURL points the config at a test server.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.URL = url
	}
}

// WithLegacyUUID writes a legacy rpa_uuid.json file and points the config at it.
func WithLegacyUUID(id string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "rpa_uuid.json")
		if err := os.WriteFile(path, []byte(`{"uuid": "`+id+`"}`), 0o644); err != nil {
			b.t.Fatalf("write legacy uuid: %v", err)
		}
		b.cfg.Paths.LegacyUUIDFile = path
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the screen driver is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Screen.DriverBinary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
