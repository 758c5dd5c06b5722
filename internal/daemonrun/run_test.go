package daemonrun_test

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"rpanode/internal/catalog"
	"rpanode/internal/config"
	"rpanode/internal/daemonrun"
	"rpanode/internal/logging"
	"rpanode/internal/nodestore"
	"rpanode/internal/testsupport"
)

func TestRescuePolicyFromConfig(t *testing.T) {
	policy := daemonrun.RescuePolicy(config.Default().Rescue)
	if policy.Attempts != 3 || policy.AttemptTimeout != 10*time.Second || policy.Retries != 1 {
		t.Fatalf("unexpected policy %+v", policy)
	}
	if policy.Settle != 15*time.Second || !slices.Equal(policy.Keys, []string{"alt", "f4"}) {
		t.Fatalf("unexpected settle or keys %+v", policy)
	}
}

func TestAssembleWiresEveryHospital(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ScreenshotDir = filepath.Join(base, "shots")
	cfg.Paths.Catalog = filepath.Join(base, "catalog", "catalog.yaml")
	cfg.Backend.URL = "http://127.0.0.1:1"
	cfg.Artifacts.BucketURL = ""
	cfg.Watcher.Enabled = true
	if err := catalog.CreateSample(cfg.Paths.Catalog); err != nil {
		t.Fatal(err)
	}

	store, err := nodestore.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	identity, err := store.EnsureIdentity(context.Background(), "")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}

	screen := testsupport.NewFakeScreen(testsupport.NewFakeClock())
	node, closeNode, err := daemonrun.Assemble(context.Background(), &cfg, logging.NewNop(), store, identity,
		daemonrun.WithDriver(screen))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	defer closeNode()

	if node.Backend.NodeID() != identity.UUID {
		t.Fatalf("backend node id = %q, want %q", node.Backend.NodeID(), identity.UUID)
	}
	if node.Watcher == nil {
		t.Fatal("expected watcher when enabled")
	}
	health := node.Orchestrator.Health()
	if len(health) != 3 {
		t.Fatalf("expected three hospital variants, got %+v", health)
	}
	for _, h := range health {
		if !h.Ready {
			t.Fatalf("variant %s not ready: %s", h.Name, h.Detail)
		}
	}
	if node.Runner.Busy() {
		t.Fatal("runner must start idle")
	}
}

func TestAssembleFailsWithoutCatalog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err := daemonrun.Assemble(context.Background(), &cfg, logging.NewNop(), nil, nodestore.Identity{UUID: "n"},
		daemonrun.WithDriver(testsupport.NewFakeScreen(testsupport.NewFakeClock())))
	if err == nil {
		t.Fatal("expected catalog error")
	}
}
