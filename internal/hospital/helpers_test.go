package hospital_test

import (
	"context"
	"sync"
	"testing"

	"rpanode/internal/catalog"
	"rpanode/internal/flow"
	"rpanode/internal/hospital"
	"rpanode/internal/patients"
	"rpanode/internal/services/backend"
	"rpanode/internal/testsupport"
	"rpanode/internal/waiter"
)

type fakeOCR struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (f *fakeOCR) Recognize(context.Context, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, nil
}

type fakeLLM struct {
	answer string
	users  []string
}

func (f *fakeLLM) Complete(_ context.Context, _, user string) (string, error) {
	f.users = append(f.users, user)
	return f.answer, nil
}

type fakeDocs struct {
	text string
	pdfs [][]byte
}

func (f *fakeDocs) RecognizeDocument(_ context.Context, pdf []byte) (string, error) {
	f.pdfs = append(f.pdfs, pdf)
	return f.text, nil
}

type ingestCall struct {
	dataType string
	hospital string
	payload  any
}

type fakeIngest struct {
	calls []ingestCall
}

func (f *fakeIngest) Ingest(_ context.Context, dataType, hospitalType string, payload any) error {
	f.calls = append(f.calls, ingestCall{dataType: dataType, hospital: hospitalType, payload: payload})
	return nil
}

type harness struct {
	screen *testsupport.FakeScreen
	clock  *testsupport.FakeClock
	ocr    *fakeOCR
	llm    *fakeLLM
	docs   *fakeDocs
	ingest *fakeIngest
	runner *flow.Runner
	deps   hospital.Deps
	files  []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := catalog.Parse(catalog.Sample(), t.TempDir())
	if err != nil {
		t.Fatalf("parse sample catalog: %v", err)
	}
	clock := testsupport.NewFakeClock()
	fake := testsupport.NewFakeScreen(clock)
	h := &harness{
		screen: fake,
		clock:  clock,
		ocr:    &fakeOCR{text: "ADAMS, JOHN  4W-12  CHF  03/01"},
		llm:    &fakeLLM{answer: `[{"name":"ADAMS, JOHN","location":"4W-12","reason":"CHF","admittedDate":"03/01"},{"name":"Maria Ruiz"}]`},
		docs:   &fakeDocs{text: "GOLDEN SUN census\nADAMS, JOHN 4W-12"},
		ingest: &fakeIngest{},
		runner: flow.NewRunner(flow.Deps{}),
	}
	h.deps = hospital.Deps{
		Runner:    h.runner,
		Engine:    waiter.New(fake, waiter.WithClock(clock)),
		Catalog:   cat,
		Patients:  &patients.Extractor{OCR: h.ocr, LLM: h.llm},
		Documents: h.docs,
		Backend:   h.ingest,
		ReadFile: func(path string) ([]byte, error) {
			h.files = append(h.files, path)
			return []byte("%PDF-1.7 census"), nil
		},
	}
	return h
}

func (h *harness) extractor(t *testing.T, kind hospital.Type) hospital.Extractor {
	t.Helper()
	ex, err := hospital.New(kind, h.deps)
	if err != nil {
		t.Fatalf("new %s: %v", kind, err)
	}
	return ex
}

func (h *harness) show(names ...string) {
	for _, name := range names {
		h.screen.Show(name)
	}
}

func request(system string, fields map[string]string) hospital.Request {
	return hospital.Request{
		DoctorID:    "42",
		DoctorName:  "Maria Ruiz",
		Credentials: []backend.Credential{{SystemKey: system, Fields: fields}},
	}
}

func pastes(fake *testsupport.FakeScreen) []string {
	var out []string
	for _, ev := range fake.EventsOfKind("paste") {
		out = append(out, ev.Text)
	}
	return out
}
