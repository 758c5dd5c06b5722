package patients_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"rpanode/internal/patients"
	"rpanode/internal/services"
)

func TestDecodeHandlesFencesAndNulls(t *testing.T) {
	raw := "```json\n[{\"name\":\"DOE, JANE\",\"location\":\"4W-12\",\"reason\":null,\"admittedDate\":\"03/01\"}, \"junk\", {\"name\":\"ROE, RICK\",\"location\":\"N/A\"}]\n```"
	got, err := patients.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 patients, got %d: %+v", len(got), got)
	}
	if got[0].Location != "4W-12" || got[0].Reason != "" || got[0].AdmittedDate != "03/01" {
		t.Fatalf("unexpected first patient %+v", got[0])
	}
	if got[1].Location != "" {
		t.Fatalf("expected N/A to become empty, got %q", got[1].Location)
	}
}

func TestDecodeRejectsObject(t *testing.T) {
	if _, err := patients.Decode(`{"name":"DOE, JANE"}`); err == nil {
		t.Fatal("expected error for non-array response")
	}
}

func TestDecodeEmptyArray(t *testing.T) {
	got, err := patients.Decode("[]")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no patients, got %+v", got)
	}
}

func TestCleanRejectsDoctorAndDuplicates(t *testing.T) {
	list := []patients.Patient{
		{Name: "  DOE,   JANE "},
		{Name: "GRAY, MEREDITH"},
		{Name: ""},
		{Name: "Jane Doe"},
		{Name: "Muñoz, José"},
		{Name: "MUNOZ, JOSE"},
		{Name: "SMITH, ALAN"},
	}
	got := patients.Clean(list, "Dr. Meredith Gray")
	names := patients.Names(got)
	want := []string{"DOE, JANE", "Jane Doe", "Muñoz, José", "SMITH, ALAN"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected names %v, want %v", names, want)
	}
}

func TestCleanKeepsPatientsWithSwappedNames(t *testing.T) {
	list := []patients.Patient{
		{Name: "LEE, ANN"},
		{Name: "ANN, LEE"},
		{Name: "Lee,Ann"},
		{Name: "lée,  ann"},
	}
	got := patients.Names(patients.Clean(list, "Dr. Alan Smith"))
	want := []string{"LEE, ANN", "ANN, LEE"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected names %v, want %v", got, want)
	}
}

func TestDedupeKeyKeepsOrder(t *testing.T) {
	if patients.DedupeKey("LEE, ANN") == patients.DedupeKey("ANN, LEE") {
		t.Fatal("swapped names must produce different keys")
	}
	if patients.DedupeKey("Muñoz,  José") != patients.DedupeKey("MUNOZ, JOSE") {
		t.Fatal("expected case, accents and spacing to be ignored")
	}
}

func TestNameKeyOrderIndependent(t *testing.T) {
	if patients.NameKey("ROE, JANE") != patients.NameKey("Jane Roé") {
		t.Fatalf("expected equal keys: %q vs %q", patients.NameKey("ROE, JANE"), patients.NameKey("Jane Roé"))
	}
	if patients.NameKey("Dr. Jane Roe, MD") != patients.NameKey("roe jane") {
		t.Fatal("expected honorifics to be ignored")
	}
}

func TestPatientMarshalWritesNulls(t *testing.T) {
	data, err := json.Marshal(patients.Patient{Name: "DOE, JANE", Location: "4W"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"name":"DOE, JANE","location":"4W","reason":null,"admittedDate":null}`
	if string(data) != want {
		t.Fatalf("unexpected json %s", data)
	}
}

type fakeOCR struct {
	texts []string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(context.Context, []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	text := f.texts[f.calls%len(f.texts)]
	f.calls++
	return text, nil
}

type fakeLLM struct {
	answer string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.answer, f.err
}

func TestExtractJoinsSegmentsAndCleans(t *testing.T) {
	ocr := &fakeOCR{texts: []string{"DOE, JANE 4W", "  "}}
	model := &fakeLLM{answer: `[{"name":"DOE, JANE"},{"name":"GRAY, MEREDITH"}]`}
	ex := &patients.Extractor{OCR: ocr, LLM: model}

	got, err := ex.Extract(context.Background(), "patient_list", []patients.Shot{
		{Label: "Steward Norwood", Image: []byte("a")},
		{Label: "Steward Carney", Image: []byte("b")},
	}, "Meredith Gray")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].Name != "DOE, JANE" {
		t.Fatalf("unexpected patients %+v", got)
	}
	if !strings.Contains(model.user, "--- SOURCE: patient_list | HOSPITAL: Steward Norwood ---\nDOE, JANE 4W") {
		t.Fatalf("unexpected user prompt %q", model.user)
	}
	if strings.Contains(model.user, "Steward Carney") {
		t.Fatal("empty ocr segment must be skipped")
	}
	if !strings.Contains(model.system, "Meredith Gray") {
		t.Fatal("system prompt must name the doctor")
	}
}

func TestExtractNoTextSkipsLLM(t *testing.T) {
	ocr := &fakeOCR{texts: []string{""}}
	model := &fakeLLM{answer: "[]"}
	ex := &patients.Extractor{OCR: ocr, LLM: model}

	got, err := ex.Extract(context.Background(), "patient_list", []patients.Shot{{Label: "x", Image: []byte("a")}}, "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 0 || model.calls != 0 {
		t.Fatalf("expected no llm call and no patients, got %d calls, %+v", model.calls, got)
	}
}

func TestExtractFailuresAreExtractionErrors(t *testing.T) {
	shots := []patients.Shot{{Label: "x", Image: []byte("a")}}

	ex := &patients.Extractor{OCR: &fakeOCR{err: errors.New("quota")}, LLM: &fakeLLM{}}
	if _, err := ex.Extract(context.Background(), "patient_list", shots, ""); !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected ErrExtraction from ocr failure, got %v", err)
	}

	ex = &patients.Extractor{OCR: &fakeOCR{texts: []string{"text"}}, LLM: &fakeLLM{answer: "not json"}}
	if _, err := ex.Extract(context.Background(), "patient_list", shots, ""); !errors.Is(err, services.ErrExtraction) {
		t.Fatalf("expected ErrExtraction from bad llm answer, got %v", err)
	}
}
