package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rpanode/internal/artifacts"
	"rpanode/internal/catalog"
	"rpanode/internal/config"
	"rpanode/internal/daemon"
	"rpanode/internal/deps"
	"rpanode/internal/extraction"
	"rpanode/internal/flow"
	"rpanode/internal/hospital"
	"rpanode/internal/logging"
	"rpanode/internal/nodestore"
	"rpanode/internal/patients"
	"rpanode/internal/power"
	"rpanode/internal/preflight"
	"rpanode/internal/runstate"
	"rpanode/internal/screen"
	"rpanode/internal/services/backend"
	"rpanode/internal/services/llm"
	"rpanode/internal/services/screenctl"
	"rpanode/internal/services/vision"
	"rpanode/internal/waiter"
	"rpanode/internal/watcher"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Once runs a single extraction cycle in the foreground and exits.
	Once bool
}

// Node holds the wired collaborators of a running extraction node.
type Node struct {
	Identity     nodestore.Identity
	Backend      *backend.Client
	Catalog      *catalog.Catalog
	Engine       *waiter.Engine
	Watcher      *watcher.Service
	Runner       *flow.Runner
	Orchestrator *extraction.Orchestrator
}

// AssembleOption customizes Assemble.
type AssembleOption func(*assembly)

type assembly struct {
	driver    screen.Driver
	artifacts flow.ArtifactStore
}

// WithDriver replaces the screen driver built from configuration.
func WithDriver(driver screen.Driver) AssembleOption {
	return func(a *assembly) { a.driver = driver }
}

// WithArtifacts replaces the screenshot store opened from configuration.
func WithArtifacts(store flow.ArtifactStore) AssembleOption {
	return func(a *assembly) { a.artifacts = store }
}

// Run starts the rpanode daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if lvl := strings.TrimSpace(opts.LogLevel); lvl != "" {
		cfg.Logging.Level = lvl
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logPreflight(signalCtx, logger, cfg)
	logging.CleanupOldFiles(logger, cfg.Logging.RetentionDays, time.Now(),
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.LogFileName)}},
		logging.RetentionTarget{Dir: cfg.Paths.ScreenshotDir, Pattern: "*.png"},
	)

	pidPath := filepath.Join(cfg.Paths.StateDir, "rpanode.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := nodestore.Open(cfg)
	if err != nil {
		logger.Error("open node store", logging.Error(err))
		return err
	}
	defer store.Close()

	identity, err := store.EnsureIdentity(signalCtx, cfg.Paths.LegacyUUIDFile)
	if err != nil {
		return fmt.Errorf("node identity: %w", err)
	}

	node, closeNode, err := Assemble(signalCtx, cfg, logger, store, identity)
	if err != nil {
		return err
	}
	defer closeNode()

	assignment, err := node.Backend.Register(signalCtx)
	if err != nil {
		logging.ErrorWithContext(logger, "node registration failed", "register_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check backend.url and network reachability"),
		)
		return fmt.Errorf("register node: %w", err)
	}
	if !assignment.Assigned() {
		logger.Info("node registered without a doctor; waiting for assignment",
			logging.String(logging.FieldEventType, "pending_assignment"),
			logging.String("node_id", identity.UUID),
		)
	}

	if opts.Once {
		report := node.Orchestrator.RunCycle(signalCtx)
		logger.Info("single cycle finished",
			logging.String(logging.FieldEventType, "cycle_once"),
			logging.Bool("idle", report.Idle),
			logging.Int("tasks", len(report.Tasks)),
			logging.Int("failures", report.Failures()),
		)
		if n := report.Failures(); n > 0 {
			return fmt.Errorf("%d stage(s) failed", n)
		}
		return nil
	}

	d, err := daemon.New(cfg, daemon.Deps{
		NodeID: identity.UUID,
		Loop:   node.Orchestrator,
		Flows:  node.Runner,
		Runs:   store,
		Logger: logger,
		Dependencies: func() []deps.Status {
			return preflight.CheckSystemDeps(cfg)
		},
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer d.Stop()

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("rpanode daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// Assemble wires every collaborator of the extraction node. The returned
// func releases resources Assemble opened.
func Assemble(ctx context.Context, cfg *config.Config, logger *slog.Logger, store *nodestore.Store, identity nodestore.Identity, opts ...AssembleOption) (*Node, func(), error) {
	var a assembly
	for _, opt := range opts {
		opt(&a)
	}
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cat, err := catalog.Load(cfg.Paths.Catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("load template catalog: %w", err)
	}

	driver := a.driver
	if driver == nil {
		client, err := screenctl.New(cfg.Screen.DriverBinary, cfg.Screen.CommandTimeout, screenctl.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("screen driver: %w", err)
		}
		driver = client
	}

	engine := waiter.New(driver,
		waiter.WithPollInterval(config.Millis(cfg.Screen.PollIntervalMS)),
		waiter.WithLogger(logger),
	)

	client := backend.New(cfg, identity.UUID, backend.WithLogger(logger))

	reporter := &flow.Reporter{Screen: driver, Backend: client, Logger: logger}
	if a.artifacts != nil {
		reporter.Artifacts = a.artifacts
	} else if strings.TrimSpace(cfg.Artifacts.BucketURL) != "" {
		bucket, err := artifacts.Open(ctx, cfg, logger)
		if err != nil {
			logging.WarnWithContext(logger, "screenshot store unavailable", "artifacts_unavailable",
				logging.Error(err),
				logging.String(logging.FieldImpact, "error reports will not include screenshots"),
			)
		} else {
			reporter.Artifacts = bucket
			closers = append(closers, func() { _ = bucket.Close() })
		}
	}

	runDeps := flow.Deps{
		Board:    runstate.NewBoard(),
		Power:    power.New(cfg.Workflow.KeepAwake, logger),
		Reporter: reporter,
		Journal:  store,
		Logger:   logger,
	}
	var guard *watcher.Service
	if cfg.Watcher.Enabled {
		guard = watcher.New(driver, cat.Guards(),
			watcher.WithInterval(config.Millis(cfg.Watcher.IntervalMS)),
			watcher.WithCooldown(config.Seconds(cfg.Watcher.CooldownSeconds)),
			watcher.WithLogger(logger),
		)
		runDeps.Watcher = guard
	}
	runner := flow.NewRunner(runDeps)

	ocr := vision.New(cfg.OCR, logger)
	extractor := &patients.Extractor{
		OCR: ocr,
		LLM: llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			Temperature:    cfg.LLM.Temperature,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		}),
		Logger: logger,
	}

	hospitalDeps := hospital.Deps{
		Runner:    runner,
		Engine:    engine,
		Catalog:   cat,
		Patients:  extractor,
		Documents: ocr,
		Backend:   client,
		Rescue:    RescuePolicy(cfg.Rescue),
		Logger:    logger,
	}
	factory := func(t hospital.Type) (hospital.Extractor, error) {
		return hospital.New(t, hospitalDeps)
	}

	orchestrator := extraction.New(identity.UUID, client, factory,
		extraction.WithSettings(extraction.SettingsFromConfig(cfg)),
		extraction.WithLogger(logger),
		extraction.WithReporter(reporter),
	)

	return &Node{
		Identity:     identity,
		Backend:      client,
		Catalog:      cat,
		Engine:       engine,
		Watcher:      guard,
		Runner:       runner,
		Orchestrator: orchestrator,
	}, closeAll, nil
}

// RescuePolicy converts the configured defaults.
func RescuePolicy(r config.Rescue) waiter.RescuePolicy {
	return waiter.RescuePolicy{
		Attempts:       r.Attempts,
		AttemptTimeout: config.Seconds(r.AttemptTimeout),
		Retries:        r.Retries,
		Settle:         config.Seconds(r.SettleSeconds),
		WakeSettle:     config.Millis(r.WakeSettleMS),
		Keys:           append([]string(nil), r.Keys...),
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	driver := preflight.CheckSystemDeps(cfg)[0]
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("screen_driver_available", driver.Available),
		logging.String("screen_driver_binary", driver.Command),
		logging.Bool("ocr_key_present", strings.TrimSpace(cfg.OCR.APIKey) != ""),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("artifacts_configured", strings.TrimSpace(cfg.Artifacts.BucketURL) != ""),
		logging.Bool("watcher_enabled", cfg.Watcher.Enabled),
		logging.Strings("disabled_emr_types", cfg.Workflow.DisabledEMRTypes),
	)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "stages depending on this check will fail"),
		)
	}
}
