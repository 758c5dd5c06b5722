package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rpanode/internal/logging"
	"rpanode/internal/nodestore"
	"rpanode/internal/power"
	"rpanode/internal/runstate"
	"rpanode/internal/services"
)

// StoppedByUser is the error text reported for an interrupted run.
const StoppedByUser = "RPA stopped by user"

// Watcher is the background modal watcher.
type Watcher interface {
	Start()
	Stop()
}

// Journal records run history.
type Journal interface {
	BeginRun(ctx context.Context, rec nodestore.RunRecord) error
	FinishRun(ctx context.Context, id string, status nodestore.RunStatus, step, errText string) error
}

// Deps wires the runner's collaborators. Only Board is required.
type Deps struct {
	Board    *runstate.Board
	Watcher  Watcher
	Power    power.Inhibitor
	Reporter *Reporter
	Journal  Journal
	Logger   *slog.Logger
	Now      func() time.Time
}

// Runner executes flows one at a time.
type Runner struct {
	deps   Deps
	logger *slog.Logger

	mu     sync.Mutex
	active atomic.Pointer[Run]

	stopMu sync.Mutex
	stop   context.CancelFunc
}

// NewRunner constructs a Runner.
func NewRunner(deps Deps) *Runner {
	if deps.Board == nil {
		deps.Board = runstate.NewBoard()
	}
	if deps.Power == nil {
		deps.Power = power.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Runner{
		deps:   deps,
		logger: logging.NewComponentLogger(deps.Logger, "flow"),
	}
}

// Board returns the published status board.
func (r *Runner) Board() *runstate.Board { return r.deps.Board }

// Busy reports whether a flow is running.
func (r *Runner) Busy() bool { return r.active.Load() != nil }

// Interrupt requests the active run to stop. It returns false when nothing
// is running.
func (r *Runner) Interrupt() bool {
	r.stopMu.Lock()
	stop := r.stop
	r.stopMu.Unlock()
	if stop == nil {
		return false
	}
	stop()
	return true
}

// Run executes f with params through the full lifecycle. Teardown always runs,
// including after a panic in a step.
func (r *Runner) Run(ctx context.Context, f Flow, params Params) (Result, error) {
	if !r.mu.TryLock() {
		active := "another flow"
		if run := r.active.Load(); run != nil {
			active = run.Flow
		}
		return Result{}, services.Wrap(services.ErrFlowBusy, "flow", "run",
			fmt.Sprintf("%s rejected while %s is running", f.Name(), active), nil)
	}
	defer r.mu.Unlock()

	ctx = services.WithFlow(services.WithHospital(ctx, strings.ToUpper(f.Hospital())), f.Type())
	runCtx, cancel := context.WithCancel(ctx)
	r.armStop(cancel)

	run := r.newRun(runCtx, f, params)
	r.active.Store(run)

	status := nodestore.RunFailed
	var failure error
	defer func() {
		r.teardown(context.WithoutCancel(ctx), run, status, failure)
		cancel()
	}()

	r.setup(ctx, run)
	if err := r.deps.Power.Inhibit(runCtx, f.Name()); err != nil {
		logging.WarnWithContext(run.Logger(), "failed to suppress idle sleep", "power_inhibit_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "desktop may sleep during the flow"),
		)
	}
	if r.deps.Watcher != nil {
		r.deps.Watcher.Start()
	}

	result, execErr := r.execute(runCtx, f, run)
	reportCtx := context.WithoutCancel(runCtx)

	switch {
	case execErr == nil && result.ErrorMarker == "":
		r.complete(reportCtx, f, run, result)
		status = nodestore.RunCompleted
		return result, nil

	case execErr == nil:
		failure = services.Wrap(services.ErrExtraction, "flow", f.Type(), result.ErrorMarker, nil)
		logging.WarnWithContext(run.Logger(), "flow returned an error result", "flow_error_result",
			logging.String("error_marker", result.ErrorMarker),
			logging.String(logging.FieldImpact, "completion not sent"),
		)
		reported := r.report(reportCtx, f, run, result.ErrorMarker)
		return result, &Error{Flow: f.Name(), Hospital: f.Hospital(), Step: run.Step(), Err: failure, Reported: reported}

	case runCtx.Err() != nil || services.IsInterrupted(execErr):
		status = nodestore.RunInterrupted
		failure = services.Wrap(services.ErrInterrupted, "flow", f.Type(), StoppedByUser, execErr)
		run.Logger().Info("flow stopped by user",
			logging.String(logging.FieldEventType, "flow_interrupted"),
			logging.String(logging.FieldStep, run.Step()),
		)
		reported := r.report(reportCtx, f, run, StoppedByUser)
		return result, &Error{Flow: f.Name(), Hospital: f.Hospital(), Step: run.Step(), Err: failure, Reported: reported}

	default:
		failure = execErr
		attrs := append([]logging.Attr{
			logging.String(logging.FieldEventType, "flow_failed"),
			logging.String(logging.FieldStep, run.Step()),
		}, logging.ErrorAttrs(execErr)...)
		run.Logger().Error("flow failed", logging.Args(attrs...)...)
		reported := r.report(reportCtx, f, run, execErr.Error())
		return result, &Error{Flow: f.Name(), Hospital: f.Hospital(), Step: run.Step(), Err: failure, Reported: reported}
	}
}

func (r *Runner) newRun(ctx context.Context, f Flow, params Params) *Run {
	run := &Run{
		ID:              uuid.NewString(),
		Flow:            f.Name(),
		FlowType:        f.Type(),
		Hospital:        strings.ToUpper(f.Hospital()),
		DoctorID:        params.DoctorID,
		DoctorName:      params.DoctorName,
		DoctorSpecialty: params.DoctorSpecialty,
		Credentials:     params.Credentials,
		PatientNames:    append([]string(nil), params.PatientNames...),
		StartedAt:       r.deps.Now().UTC(),
		board:           r.deps.Board,
	}
	run.logger = logging.WithContext(ctx, r.logger).With(logging.String("flow_id", run.ID))
	return run
}

func (r *Runner) setup(ctx context.Context, run *Run) {
	r.deps.Board.Publish(runstate.Snapshot{
		Status:     runstate.StatusRunning,
		FlowID:     run.ID,
		Flow:       run.Flow,
		Hospital:   run.Hospital,
		DoctorID:   run.DoctorID,
		DoctorName: run.DoctorName,
		StartedAt:  run.StartedAt,
	})
	if r.deps.Journal != nil {
		if err := r.deps.Journal.BeginRun(ctx, nodestore.RunRecord{
			ID:        run.ID,
			Flow:      run.Flow,
			Hospital:  run.Hospital,
			DoctorID:  run.DoctorID,
			Status:    nodestore.RunRunning,
			StartedAt: run.StartedAt,
		}); err != nil {
			logging.WarnWithContext(run.Logger(), "failed to journal run start", "journal_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run missing from history"),
			)
		}
	}
	run.Logger().Info("flow started",
		logging.String(logging.FieldEventType, "flow_start"),
		logging.String("doctor_id", run.DoctorID),
		logging.String("doctor_name", run.DoctorName),
		logging.Int("credentials", len(run.Credentials)),
		logging.Int("patient_names", len(run.PatientNames)),
	)
}

func (r *Runner) execute(ctx context.Context, f Flow, run *Run) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", run.Step(), p)
		}
	}()
	return f.Execute(ctx, run)
}

func (r *Runner) complete(ctx context.Context, f Flow, run *Run, result Result) {
	logger := run.Logger()
	if result.Payload == nil {
		logger.Info("flow completed with nothing to deliver",
			logging.String(logging.FieldEventType, "flow_complete"),
		)
		return
	}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic in completion notice: %v", p)
			}
		}()
		return f.NotifyCompletion(ctx, run, result)
	}()
	if err != nil {
		logging.WarnWithContext(logger, "completion notice failed", "flow_notify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "extracted data not delivered this cycle"),
			logging.String(logging.FieldErrorHint, "check backend reachability"),
		)
	}
	logger.Info("flow completed",
		logging.String(logging.FieldEventType, "flow_complete"),
		logging.Int("count", result.Count),
		logging.Bool("delivered", err == nil),
	)
}

func (r *Runner) report(ctx context.Context, f Flow, run *Run, message string) bool {
	if r.deps.Reporter == nil {
		return false
	}
	err := r.deps.Reporter.Report(ctx, Failure{
		FlowType: f.Type(),
		Hospital: f.Hospital(),
		DoctorID: run.DoctorID,
		Step:     run.Step(),
		Message:  message,
	})
	return err == nil
}

func (r *Runner) teardown(ctx context.Context, run *Run, status nodestore.RunStatus, failure error) {
	if r.deps.Watcher != nil {
		r.deps.Watcher.Stop()
	}
	if err := r.deps.Power.Release(); err != nil {
		run.Logger().Debug("failed to release sleep inhibitor", logging.Error(err))
	}
	r.deps.Board.Reset()
	r.disarmStop()
	r.active.Store(nil)

	errText := ""
	if failure != nil {
		errText = failure.Error()
	}
	if r.deps.Journal != nil {
		if err := r.deps.Journal.FinishRun(ctx, run.ID, status, run.Step(), errText); err != nil {
			logging.WarnWithContext(run.Logger(), "failed to journal run finish", "journal_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run history shows the run as still running"),
			)
		}
	}
	run.Logger().Info("flow finished",
		logging.String(logging.FieldEventType, "flow_teardown"),
		logging.String("status", string(status)),
		logging.Duration("duration", r.deps.Now().Sub(run.StartedAt)),
	)
}

func (r *Runner) armStop(cancel context.CancelFunc) {
	r.stopMu.Lock()
	r.stop = cancel
	r.stopMu.Unlock()
}

func (r *Runner) disarmStop() {
	r.stopMu.Lock()
	r.stop = nil
	r.stopMu.Unlock()
}
