package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rpanode/internal/hospital"
	"rpanode/internal/logging"
	"rpanode/internal/patients"
	"rpanode/internal/screen"
	"rpanode/internal/services"
	"rpanode/internal/services/backend"
	"rpanode/internal/stage"
	"rpanode/internal/stageexec"
)

// Backend is the part of the backend client a cycle uses.
type Backend interface {
	FetchConfig(ctx context.Context) (backend.NodeConfig, error)
	Heartbeat(ctx context.Context) error
}

// Factory builds the extractor for a hospital type.
type Factory func(t hospital.Type) (hospital.Extractor, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings replaces the default cycle settings.
func WithSettings(s Settings) Option {
	return func(o *Orchestrator) { o.settings = s }
}

// WithClock injects the clock used for pauses.
func WithClock(clock screen.Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.NewComponentLogger(logger, "extraction") }
}

// WithReporter sets where stage failures are reported.
func WithReporter(r stageexec.FailureReporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// Orchestrator runs extraction cycles. Only one goroutine may call RunCycle
// or Run at a time; State is safe from any goroutine.
type Orchestrator struct {
	backend  Backend
	factory  Factory
	reporter stageexec.FailureReporter
	settings Settings
	clock    screen.Clock
	logger   *slog.Logger

	mu     sync.RWMutex
	state  CycleState
	config backend.NodeConfig
	last   *CycleReport
}

// New constructs an Orchestrator for nodeID.
func New(nodeID string, b Backend, factory Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:  b,
		factory:  factory,
		settings: DefaultSettings(),
		clock:    screen.SystemClock{},
		logger:   logging.NewComponentLogger(nil, "extraction"),
		state: CycleState{
			NodeID: nodeID,
			Names:  make(map[string][]string),
			Phase:  "idle",
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns a copy of the current cycle state.
func (o *Orchestrator) State() CycleState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.clone()
}

// LastReport returns the most recent finished cycle, if any.
func (o *Orchestrator) LastReport() (CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return CycleReport{}, false
	}
	return *o.last, true
}

// Health reports whether each hospital variant can be built.
func (o *Orchestrator) Health() []stage.Health {
	out := make([]stage.Health, 0, len(hospital.Types()))
	for _, t := range hospital.Types() {
		if _, err := o.factory(t); err != nil {
			out = append(out, stage.Unhealthy(string(t), err.Error()))
			continue
		}
		out = append(out, stage.Healthy(string(t)))
	}
	return out
}

// Run repeats RunCycle until ctx ends, sleeping the extraction interval
// between cycles or the empty-config retry when there was nothing to do.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("extraction loop started",
		logging.String(logging.FieldEventType, "loop_start"),
		logging.Duration("interval", o.settings.Interval),
	)
	for {
		if ctx.Err() != nil {
			break
		}
		report := o.RunCycle(ctx)
		if ctx.Err() != nil {
			break
		}
		wait := o.settings.Interval
		if report.Idle {
			wait = o.settings.EmptyConfigRetry
		} else {
			o.logger.Info("cycle complete; waiting for next cycle",
				logging.String(logging.FieldEventType, "cycle_wait"),
				logging.Duration("wait", wait),
				logging.Int("failures", report.Failures()),
			)
		}
		o.setPhase("waiting")
		if err := o.pause(ctx, wait); err != nil {
			break
		}
	}
	o.setPhase("stopped")
	o.logger.Info("extraction loop stopped", logging.String(logging.FieldEventType, "loop_stop"))
	return nil
}

// RunCycle performs one pass over the configured hospitals.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: o.clock.Now()}
	defer o.finishCycle(&report)

	cfg := o.refresh(ctx)
	if !cfg.Assigned() {
		report.Idle, report.IdleReason = true, "pending assignment"
		o.logger.Info("no doctor assigned; pending assignment",
			logging.String(logging.FieldEventType, "cycle_idle"),
			logging.Duration("retry_in", o.settings.EmptyConfigRetry),
		)
		return report
	}
	if len(cfg.Hospitals) == 0 {
		report.Idle, report.IdleReason = true, "no hospitals configured"
		o.logger.Info("no hospital configs found",
			logging.String(logging.FieldEventType, "cycle_idle"),
			logging.Duration("retry_in", o.settings.EmptyConfigRetry),
		)
		return report
	}

	disabled := o.settings.disabled()
	o.logger.Info("cycle started",
		logging.String(logging.FieldEventType, "cycle_start"),
		logging.Int("hospitals", len(cfg.Hospitals)),
		logging.Strings("disabled_types", o.settings.DisabledTypes),
	)
	o.setPhase("running")

	for _, h := range cfg.Hospitals {
		if ctx.Err() != nil {
			report.Stopped = true
			break
		}
		name := h.NormalizedType()
		if !h.IsEnabled() {
			o.logger.Info("hospital disabled by backend; skipping", logging.String(logging.FieldHospital, name))
			continue
		}
		if _, off := disabled[name]; off {
			o.logger.Info("hospital disabled by config; skipping", logging.String(logging.FieldHospital, name))
			continue
		}
		report.Tasks = append(report.Tasks, o.runHospital(ctx, cfg, h)...)
		if ctx.Err() != nil {
			report.Stopped = true
			break
		}
		if err := o.clock.Sleep(ctx, o.settings.HospitalPause); err != nil {
			report.Stopped = true
			break
		}
	}
	return report
}

// refresh fetches the configuration and sends the heartbeat. A failed fetch
// keeps the previous configuration.
func (o *Orchestrator) refresh(ctx context.Context) backend.NodeConfig {
	if cfg, err := o.backend.FetchConfig(ctx); err != nil {
		logging.WarnWithContext(o.logger, "config fetch failed", "config_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "cycle uses the previous configuration"),
		)
	} else {
		o.mu.Lock()
		o.config = cfg
		o.state.Assigned = cfg.Assigned()
		o.state.DoctorID = cfg.DoctorID.String()
		o.state.DoctorName = cfg.DoctorName
		o.state.DoctorSpecialty = cfg.DoctorSpecialty
		o.state.Hospitals = o.state.Hospitals[:0]
		for _, h := range cfg.Hospitals {
			o.state.Hospitals = append(o.state.Hospitals, h.NormalizedType())
		}
		o.mu.Unlock()
	}
	if err := o.backend.Heartbeat(ctx); err != nil {
		logging.WarnWithContext(o.logger, "heartbeat failed", "heartbeat_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "backend may show this node as offline"),
		)
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.config
}

func (o *Orchestrator) runHospital(ctx context.Context, cfg backend.NodeConfig, h backend.Hospital) []TaskResult {
	name := h.NormalizedType()
	logger := o.logger.With(logging.String(logging.FieldHospital, name))
	logger.Info("hospital started", logging.String(logging.FieldEventType, "hospital_start"))

	var results []TaskResult
	skip := func(s stage.Name, reason string) {
		results = append(results, TaskResult{Hospital: name, Stage: s, Skipped: true, SkipReason: reason})
	}
	skipBatches := func(reason string) {
		skip(stage.BatchSummaries, reason)
		skip(stage.BatchInsurance, reason)
	}

	ex, err := o.extractor(name)
	if err != nil {
		logging.WarnWithContext(logger, "unknown hospital type", "hospital_unknown",
			logging.Error(err),
			logging.String(logging.FieldImpact, "hospital skipped this cycle"),
		)
		results = append(results, TaskResult{Hospital: name, Stage: stage.PatientList, Error: err.Error()})
		skipBatches("patient list failed")
		return results
	}

	task := stage.Task{
		Hospital:        name,
		DoctorID:        cfg.DoctorID.String(),
		DoctorName:      cfg.DoctorName,
		DoctorSpecialty: cfg.DoctorSpecialty,
		Credentials:     cfg.CredentialsFor(h),
	}

	if o.settings.SkipPatientList {
		skip(stage.PatientList, "skip_patient_list")
		skipBatches("patient list skipped")
		return results
	}
	list := o.runStage(ctx, ex, task, stage.PatientList)
	results = append(results, list.result)
	if !list.result.Succeeded {
		logging.WarnWithContext(logger, "skipping summaries and insurance because patient list failed", "batches_skipped",
			logging.String(logging.FieldImpact, "no summaries or insurance this cycle"))
		skipBatches("patient list failed")
		return results
	}

	o.mu.Lock()
	o.state.Names[name] = append([]string(nil), list.names...)
	o.mu.Unlock()
	if len(list.names) == 0 {
		logging.WarnWithContext(logger, "no patient names; skipping summaries and insurance", "batches_skipped",
			logging.String(logging.FieldImpact, "no summaries or insurance this cycle"))
		skipBatches("no patient names")
		return results
	}
	task.PatientNames = list.names

	for _, batch := range []struct {
		name stage.Name
		off  bool
		flag string
	}{
		{stage.BatchSummaries, o.settings.SkipSummaries, "skip_batch_summaries"},
		{stage.BatchInsurance, o.settings.SkipInsurance, "skip_batch_insurance"},
	} {
		switch {
		case batch.off:
			skip(batch.name, batch.flag)
		case ctx.Err() != nil:
			skip(batch.name, "stop requested")
		default:
			results = append(results, o.runStage(ctx, ex, task, batch.name).result)
		}
	}
	logger.Info("hospital complete", logging.String(logging.FieldEventType, "hospital_complete"))
	return results
}

func (o *Orchestrator) extractor(name string) (hospital.Extractor, error) {
	t, err := hospital.ParseType(name)
	if err != nil {
		return nil, err
	}
	return o.factory(t)
}

type stageRun struct {
	result TaskResult
	names  []string
}

func (o *Orchestrator) runStage(ctx context.Context, ex hospital.Extractor, task stage.Task, name stage.Name) stageRun {
	task.Stage = name
	o.setPhase(fmt.Sprintf("%s %s", task.Hospital, name))
	stageCtx := ctx
	if o.settings.TaskTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, o.settings.TaskTimeout)
		defer cancel()
	}
	outcome := stageexec.Run(stageCtx, stageexec.Options{
		Logger:   o.logger,
		Reporter: o.reporter,
		Handler:  handler{ex: ex, logger: o.logger},
		Task:     task,
	})
	result := TaskResult{
		Hospital:  task.Hospital,
		Stage:     name,
		Succeeded: outcome.Succeeded(),
		Names:     len(outcome.Names),
		Duration:  outcome.Duration,
	}
	if outcome.Err != nil {
		result.Error = services.Details(outcome.Err).Message
	}
	return stageRun{result: result, names: outcome.Names}
}

func (o *Orchestrator) finishCycle(report *CycleReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !report.Idle && (!report.Stopped || len(report.Tasks) > 0) {
		o.state.Cycles++
		o.state.LastCycleAt = report.StartedAt
	}
	o.state.Phase = "idle"
	snapshot := *report
	snapshot.Tasks = append([]TaskResult(nil), report.Tasks...)
	o.last = &snapshot
}

func (o *Orchestrator) setPhase(phase string) {
	o.mu.Lock()
	o.state.Phase = phase
	o.mu.Unlock()
}

// pause sleeps d in one-second slices so a stop is noticed promptly.
func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	for d > 0 {
		slice := min(d, time.Second)
		if err := o.clock.Sleep(ctx, slice); err != nil {
			return err
		}
		d -= slice
	}
	return nil
}

// handler adapts a hospital extractor to the stage contract.
type handler struct {
	ex     hospital.Extractor
	logger *slog.Logger
}

func (h handler) Execute(ctx context.Context, task stage.Task) ([]string, error) {
	req := hospital.Request{
		DoctorID:        task.DoctorID,
		DoctorName:      task.DoctorName,
		DoctorSpecialty: task.DoctorSpecialty,
		Credentials:     task.Credentials,
	}
	switch task.Stage {
	case stage.PatientList:
		list, err := h.ex.PatientList(ctx, req)
		if err != nil {
			return nil, err
		}
		return patients.Names(list), nil
	case stage.BatchSummaries:
		report, err := h.ex.Summaries(ctx, req, task.PatientNames)
		h.logBatch(ctx, task, report, err)
		return nil, err
	case stage.BatchInsurance:
		report, err := h.ex.Insurance(ctx, req, task.PatientNames)
		h.logBatch(ctx, task, report, err)
		return nil, err
	default:
		return nil, fmt.Errorf("unknown stage %q", task.Stage)
	}
}

func (h handler) logBatch(ctx context.Context, task stage.Task, report hospital.BatchReport, err error) {
	if err != nil {
		return
	}
	logging.WithContext(ctx, h.logger).Info("batch complete",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("found", report.FoundCount),
		logging.Int("total", len(task.PatientNames)),
	)
}
