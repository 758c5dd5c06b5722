package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"rpanode/internal/api"
	"rpanode/internal/config"
	"rpanode/internal/deps"
	"rpanode/internal/extraction"
	"rpanode/internal/logging"
	"rpanode/internal/nodestore"
	"rpanode/internal/runstate"
	"rpanode/internal/stage"
)

// Loop is the extraction cycle loop.
type Loop interface {
	Run(ctx context.Context) error
	State() extraction.CycleState
	LastReport() (extraction.CycleReport, bool)
	Health() []stage.Health
}

// FlowControl exposes the flow runner to the API.
type FlowControl interface {
	Board() *runstate.Board
	Busy() bool
	Interrupt() bool
}

// RunJournal is the run history store.
type RunJournal interface {
	RecentRuns(ctx context.Context, limit int) ([]nodestore.RunRecord, error)
	GetRun(ctx context.Context, id string) (nodestore.RunRecord, bool, error)
	AbandonStaleRuns(ctx context.Context) (int64, error)
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// Deps wires the daemon. Loop, Flows, and Runs are required.
type Deps struct {
	NodeID       string
	Loop         Loop
	Flows        FlowControl
	Runs         RunJournal
	Logger       *slog.Logger
	Dependencies func() []deps.Status
}

// Daemon runs the extraction loop and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	loopErr error
}

// New constructs a daemon.
func New(cfg *config.Config, d Deps) (*Daemon, error) {
	if cfg == nil || d.Loop == nil || d.Flows == nil || d.Runs == nil {
		return nil, errors.New("daemon requires config, extraction loop, flow runner, and run journal")
	}
	if d.Dependencies == nil {
		d.Dependencies = func() []deps.Status { return nil }
	}
	daemon := &Daemon{
		cfg:      cfg,
		deps:     d,
		logger:   logging.NewComponentLogger(d.Logger, "daemon"),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	daemon.api = newAPIServer(cfg, daemon, d.Logger)
	return daemon, nil
}

// Start acquires the lock, recovers the run journal, and launches the loop
// and status API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(d.cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another rpanode daemon instance is already running")
	}

	d.recoverJournal(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.done = make(chan struct{})
	d.loopErr = nil
	go d.runLoop(runCtx, d.done)

	d.running.Store(true)
	d.logger.Info("rpanode daemon started",
		logging.String(logging.FieldEventType, "daemon_start"),
		logging.String("node_id", d.deps.NodeID),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if err := d.deps.Loop.Run(ctx); err != nil {
		logging.ErrorWithContext(d.logger, "extraction loop exited", "loop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no further extraction cycles until restart"),
		)
		d.mu.Lock()
		d.loopErr = err
		d.mu.Unlock()
	}
}

func (d *Daemon) recoverJournal(ctx context.Context) {
	if n, err := d.deps.Runs.AbandonStaleRuns(ctx); err != nil {
		logging.WarnWithContext(d.logger, "run journal recovery failed", "journal_recover_failed", logging.Error(err))
	} else if n > 0 {
		d.logger.Info("marked stale runs abandoned",
			logging.String(logging.FieldEventType, "journal_recovered"),
			logging.Int64("runs", n),
		)
	}
	if days := d.cfg.Logging.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		if _, err := d.deps.Runs.PruneRuns(ctx, cutoff); err != nil {
			logging.WarnWithContext(d.logger, "run journal prune failed", "journal_prune_failed", logging.Error(err))
		}
	}
}

// Done is closed when the extraction loop returns. Nil before Start.
func (d *Daemon) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Stop cancels the loop before interrupting any active flow, so no further
// stage starts once the flow returns. It then waits for the loop and releases
// the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if d.deps.Flows.Interrupt() {
		d.logger.Info("active flow interrupted for shutdown", logging.String(logging.FieldEventType, "flow_interrupt"))
	}
	<-done
	d.api.stop()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("rpanode daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool { return d.running.Load() }

// Interrupt asks the active flow to stop. The loop continues with the next
// stage or hospital.
func (d *Daemon) Interrupt() api.InterruptResponse {
	if d.deps.Flows.Interrupt() {
		return api.InterruptResponse{Interrupted: true, Message: "stop requested"}
	}
	return api.InterruptResponse{Message: "no flow running"}
}

// Runs returns the most recent journaled runs.
func (d *Daemon) Runs(ctx context.Context, limit int) ([]api.Run, error) {
	records, err := d.deps.Runs.RecentRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	return api.FromRunRecords(records), nil
}

// Run returns one journaled run.
func (d *Daemon) Run(ctx context.Context, id string) (api.Run, bool, error) {
	rec, ok, err := d.deps.Runs.GetRun(ctx, id)
	if err != nil || !ok {
		return api.Run{}, ok, err
	}
	return api.FromRunRecord(rec), true, nil
}

// Status returns the current daemon status. Patient names are included only
// when withNames is set.
func (d *Daemon) Status(withNames bool) api.NodeStatus {
	var last *extraction.CycleReport
	if report, ok := d.deps.Loop.LastReport(); ok {
		last = &report
	}
	return api.NodeStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		NodeID:       d.deps.NodeID,
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Flow:         api.FromSnapshot(d.deps.Flows.Board().Snapshot()),
		Cycle:        api.FromCycle(d.deps.Loop.State(), last, withNames),
		StageHealth:  api.StageHealthSlice(d.deps.Loop.Health()),
		Dependencies: api.FromDependencies(d.deps.Dependencies()),
	}
}
