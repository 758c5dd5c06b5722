package flow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rpanode/internal/flow"
	"rpanode/internal/nodestore"
	"rpanode/internal/runstate"
	"rpanode/internal/screen"
	"rpanode/internal/services"
	"rpanode/internal/services/backend"
	"rpanode/internal/testsupport"
)

type fakeFlow struct {
	execute  func(ctx context.Context, run *flow.Run) (flow.Result, error)
	notified []flow.Result
	notifyFn func() error
}

func (f *fakeFlow) Name() string     { return "Steward patient list" }
func (f *fakeFlow) Type() string     { return "steward_patient_list" }
func (f *fakeFlow) Hospital() string { return "steward" }

func (f *fakeFlow) Execute(ctx context.Context, run *flow.Run) (flow.Result, error) {
	return f.execute(ctx, run)
}

func (f *fakeFlow) NotifyCompletion(_ context.Context, _ *flow.Run, result flow.Result) error {
	f.notified = append(f.notified, result)
	if f.notifyFn != nil {
		return f.notifyFn()
	}
	return nil
}

type fakeWatcher struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (w *fakeWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts++
	w.running = true
}

func (w *fakeWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stops++
	w.running = false
}

type fakePower struct {
	held     bool
	inhibits int
	releases int
}

func (p *fakePower) Inhibit(context.Context, string) error {
	p.inhibits++
	p.held = true
	return nil
}

func (p *fakePower) Release() error {
	p.releases++
	p.held = false
	return nil
}

type fakeArtifacts struct {
	keys []string
}

func (a *fakeArtifacts) Upload(_ context.Context, key string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", errors.New("empty png")
	}
	a.keys = append(a.keys, key)
	return "https://bucket.example/" + key, nil
}

type reportCall struct {
	hospital string
	message  string
	url      string
}

type fakeSink struct {
	calls []reportCall
	err   error
}

func (s *fakeSink) ReportError(_ context.Context, hospital, message, url string) error {
	s.calls = append(s.calls, reportCall{hospital: hospital, message: message, url: url})
	return s.err
}

type harness struct {
	runner    *flow.Runner
	board     *runstate.Board
	watcher   *fakeWatcher
	power     *fakePower
	artifacts *fakeArtifacts
	sink      *fakeSink
	store     *nodestore.Store
	screen    *testsupport.FakeScreen
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		board:     runstate.NewBoard(),
		watcher:   &fakeWatcher{},
		power:     &fakePower{},
		artifacts: &fakeArtifacts{},
		sink:      &fakeSink{},
		store:     testsupport.MustOpenStore(t, cfg),
		screen:    testsupport.NewFakeScreen(nil),
	}
	fixed := time.Date(2025, 3, 1, 14, 5, 9, 0, time.UTC)
	h.runner = flow.NewRunner(flow.Deps{
		Board:   h.board,
		Watcher: h.watcher,
		Power:   h.power,
		Reporter: &flow.Reporter{
			Screen:    h.screen,
			Artifacts: h.artifacts,
			Backend:   h.sink,
			Now:       func() time.Time { return fixed },
		},
		Journal: h.store,
	})
	return h
}

func (h *harness) assertTornDown(t *testing.T) {
	t.Helper()
	if snap := h.board.Snapshot(); snap.Status != runstate.StatusIdle || snap.Step != "" || snap.DoctorID != "" {
		t.Fatalf("board not reset: %+v", snap)
	}
	if h.watcher.running || h.watcher.stops != h.watcher.starts {
		t.Fatalf("watcher not stopped: starts=%d stops=%d", h.watcher.starts, h.watcher.stops)
	}
	if h.power.held {
		t.Fatal("idle sleep still suppressed")
	}
	if h.runner.Busy() {
		t.Fatal("runner still busy")
	}
	if h.runner.Interrupt() {
		t.Fatal("stop flag should be cleared after teardown")
	}
}

func (h *harness) lastRun(t *testing.T) nodestore.RunRecord {
	t.Helper()
	runs, err := h.store.RecentRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("RecentRuns: %v (%d rows)", err, len(runs))
	}
	return runs[0]
}

var params = flow.Params{
	DoctorID:   "42",
	DoctorName: "Meredith Gray",
	Credentials: []backend.Credential{
		{SystemKey: "STEWARD", Fields: map[string]string{"email": "m@example.org", "password": "pw"}},
	},
}

func TestRunSuccessNotifiesAndTearsDown(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(ctx context.Context, run *flow.Run) (flow.Result, error) {
		run.SetStep("STEP_1_TAB")
		snap := h.board.Snapshot()
		if snap.Status != runstate.StatusRunning || snap.Step != "STEP_1_TAB" || snap.DoctorName != "Meredith Gray" {
			t.Errorf("unexpected running snapshot %+v", snap)
		}
		if !h.watcher.running || !h.power.held {
			t.Error("watcher and keep-awake must be active during execute")
		}
		if _, ok := services.FlowFromContext(ctx); !ok {
			t.Error("flow name missing from context")
		}
		return flow.Result{Payload: []string{"DOE, JANE"}, Count: 1}, nil
	}}

	result, err := h.runner.Run(context.Background(), f, params)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Count != 1 || len(f.notified) != 1 {
		t.Fatalf("expected one completion notice, got %d", len(f.notified))
	}
	if len(h.sink.calls) != 0 {
		t.Fatalf("no error report expected, got %+v", h.sink.calls)
	}
	h.assertTornDown(t)
	if rec := h.lastRun(t); rec.Status != nodestore.RunCompleted || rec.Step != "STEP_1_TAB" || rec.Hospital != "STEWARD" {
		t.Fatalf("unexpected journal row %+v", rec)
	}
}

func TestRunNilPayloadSkipsNotification(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
		return flow.Result{}, nil
	}}
	if _, err := h.runner.Run(context.Background(), f, params); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(f.notified) != 0 {
		t.Fatal("empty result must not be delivered")
	}
}

func TestRunNotifyFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{
		execute: func(context.Context, *flow.Run) (flow.Result, error) {
			return flow.Result{Payload: "x"}, nil
		},
		notifyFn: func() error { return services.Wrap(services.ErrNetwork, "backend", "ingest", "", nil) },
	}
	if _, err := h.runner.Run(context.Background(), f, params); err != nil {
		t.Fatalf("network failure on notify must be logged, not raised: %v", err)
	}
}

func TestRunStepErrorReportsWithScreenshot(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(ctx context.Context, run *flow.Run) (flow.Result, error) {
		if err := run.Do(ctx, "STEP_1_TAB", func(context.Context) error { return nil }); err != nil {
			return flow.Result{}, err
		}
		return flow.Result{}, run.Do(ctx, "STEP_2_FAVORITE", func(context.Context) error {
			return services.Wrap(services.ErrDetectionTimeout, "waiter", "wait", "Favorite Steward not found", nil)
		})
	}}

	_, err := h.runner.Run(context.Background(), f, params)
	var flowErr *flow.Error
	if !errors.As(err, &flowErr) {
		t.Fatalf("expected *flow.Error, got %v", err)
	}
	if flowErr.Step != "STEP_2_FAVORITE" || !flowErr.Reported || !flow.Reported(err) {
		t.Fatalf("unexpected flow error %+v", flowErr)
	}
	if !errors.Is(err, services.ErrDetectionTimeout) {
		t.Fatalf("marker lost: %v", err)
	}
	if len(f.notified) != 0 {
		t.Fatal("failed flow must not notify completion")
	}
	if len(h.artifacts.keys) != 1 || h.artifacts.keys[0] != "steward_patient_list/42/error_STEP_2_FAVORITE_20250301_140509.png" {
		t.Fatalf("unexpected screenshot keys %v", h.artifacts.keys)
	}
	if len(h.sink.calls) != 1 {
		t.Fatalf("expected one report, got %d", len(h.sink.calls))
	}
	call := h.sink.calls[0]
	if call.hospital != "STEWARD" || !strings.Contains(call.message, "Favorite Steward not found") || !strings.HasSuffix(call.url, ".png") {
		t.Fatalf("unexpected report %+v", call)
	}
	h.assertTornDown(t)
	if rec := h.lastRun(t); rec.Status != nodestore.RunFailed || !strings.Contains(rec.Error, "Favorite Steward") {
		t.Fatalf("unexpected journal row %+v", rec)
	}
}

func TestRunPanicStillTearsDown(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(_ context.Context, run *flow.Run) (flow.Result, error) {
		run.SetStep("STEP_3_MEDITECH")
		panic("nil region")
	}}
	_, err := h.runner.Run(context.Background(), f, params)
	if err == nil || !strings.Contains(err.Error(), "panic in STEP_3_MEDITECH") {
		t.Fatalf("expected panic error, got %v", err)
	}
	h.assertTornDown(t)
	if len(h.sink.calls) != 1 {
		t.Fatal("panic must be reported")
	}
}

func TestRunInterruptReportsStoppedByUser(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(ctx context.Context, run *flow.Run) (flow.Result, error) {
		run.SetStep("STEP_5_OPEN_SESSION")
		if !h.runner.Interrupt() {
			t.Error("Interrupt should find the active run")
		}
		if err := screen.Sleep(ctx, time.Minute); err != nil {
			return flow.Result{}, err
		}
		return flow.Result{Payload: "unreachable"}, nil
	}}

	_, err := h.runner.Run(context.Background(), f, params)
	if !errors.Is(err, services.ErrInterrupted) {
		t.Fatalf("expected interrupted error, got %v", err)
	}
	if len(h.sink.calls) != 1 || h.sink.calls[0].message != flow.StoppedByUser {
		t.Fatalf("unexpected reports %+v", h.sink.calls)
	}
	if len(h.artifacts.keys) != 1 {
		t.Fatal("interrupted run must still capture a screenshot")
	}
	h.assertTornDown(t)
	if rec := h.lastRun(t); rec.Status != nodestore.RunInterrupted {
		t.Fatalf("unexpected status %s", rec.Status)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	var nestedErr error
	f := &fakeFlow{execute: func(ctx context.Context, _ *flow.Run) (flow.Result, error) {
		other := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
			t.Error("second flow must not execute")
			return flow.Result{}, nil
		}}
		_, nestedErr = h.runner.Run(ctx, other, params)
		return flow.Result{}, nil
	}}
	if _, err := h.runner.Run(context.Background(), f, params); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(nestedErr, services.ErrFlowBusy) {
		t.Fatalf("expected ErrFlowBusy, got %v", nestedErr)
	}
	if h.watcher.starts != 1 {
		t.Fatalf("rejected run must not touch the watcher, starts=%d", h.watcher.starts)
	}
}

func TestRunErrorMarkerReportsInsteadOfNotifying(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
		return flow.Result{Payload: "partial", ErrorMarker: "OCR returned nothing"}, nil
	}}
	_, err := h.runner.Run(context.Background(), f, params)
	if !flow.Reported(err) {
		t.Fatalf("expected reported failure, got %v", err)
	}
	if len(f.notified) != 0 {
		t.Fatal("error marker result must not send a completion notice")
	}
	if len(h.sink.calls) != 1 || h.sink.calls[0].message != "OCR returned nothing" {
		t.Fatalf("expected one error report carrying the marker, got %+v", h.sink.calls)
	}
	if len(h.artifacts.keys) != 1 {
		t.Fatalf("expected screenshot upload, got %v", h.artifacts.keys)
	}
}

func TestRunErrorMarkerUnreportedWhenBackendFails(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("backend down")
	f := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
		return flow.Result{ErrorMarker: "OCR returned nothing"}, nil
	}}
	_, err := h.runner.Run(context.Background(), f, params)
	if err == nil || flow.Reported(err) {
		t.Fatalf("expected unreported failure so the caller reports it, got %v", err)
	}
}

func TestRunReportFailureLeavesErrorUnreported(t *testing.T) {
	h := newHarness(t)
	h.sink.err = errors.New("backend down")
	f := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
		return flow.Result{}, errors.New("boom")
	}}
	_, err := h.runner.Run(context.Background(), f, params)
	if err == nil || flow.Reported(err) {
		t.Fatalf("expected unreported failure, got %v", err)
	}
}

func TestScreenshotFailureStillReports(t *testing.T) {
	h := newHarness(t)
	h.screen.ScreenshotErr = errors.New("no display")
	f := &fakeFlow{execute: func(context.Context, *flow.Run) (flow.Result, error) {
		return flow.Result{}, errors.New("boom")
	}}
	_, _ = h.runner.Run(context.Background(), f, params)
	if len(h.sink.calls) != 1 || h.sink.calls[0].url != "" {
		t.Fatalf("expected text-only report, got %+v", h.sink.calls)
	}
}

func TestRunCredentialLookup(t *testing.T) {
	h := newHarness(t)
	f := &fakeFlow{execute: func(_ context.Context, run *flow.Run) (flow.Result, error) {
		email, err := run.CredentialField("STEWARD", "email", "Steward")
		if err != nil || email != "m@example.org" {
			t.Errorf("CredentialField = %q, %v", email, err)
		}
		if _, err := run.CredentialField("STEWARD", "token", "Steward"); err == nil ||
			!strings.Contains(err.Error(), "Steward credentials missing 'token' field") {
			t.Errorf("unexpected missing-field error %v", err)
		}
		_, err = run.Credential("steward")
		if err == nil || !strings.Contains(err.Error(), "Credentials for system 'steward' not found in doctor configuration") {
			t.Errorf("credential lookup must be exact, got %v", err)
		}
		return flow.Result{}, nil
	}}
	if _, err := h.runner.Run(context.Background(), f, params); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
