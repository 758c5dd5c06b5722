package hospital_test

import (
	"errors"
	"testing"

	"rpanode/internal/hospital"
	"rpanode/internal/services"
)

func TestParseType(t *testing.T) {
	cases := map[string]hospital.Type{
		"steward":  hospital.Steward,
		" JACKSON": hospital.Jackson,
		"Baptist":  hospital.Baptist,
	}
	for in, want := range cases {
		got, err := hospital.ParseType(in)
		if err != nil || got != want {
			t.Fatalf("ParseType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := hospital.ParseType("mercy"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	h := newHarness(t)
	if _, err := hospital.New(hospital.Type("MERCY"), h.deps); err == nil {
		t.Fatal("expected error for unknown type")
	}
	for _, kind := range hospital.Types() {
		ex := h.extractor(t, kind)
		if ex.Type() != kind {
			t.Fatalf("extractor for %s reports %s", kind, ex.Type())
		}
	}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	if _, err := hospital.New(hospital.Jackson, hospital.Deps{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
