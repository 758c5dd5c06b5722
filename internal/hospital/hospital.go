package hospital

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"rpanode/internal/catalog"
	"rpanode/internal/flow"
	"rpanode/internal/patients"
	"rpanode/internal/services"
	"rpanode/internal/services/backend"
	"rpanode/internal/waiter"
)

// Type is a supported hospital.
type Type string

const (
	Jackson Type = "JACKSON"
	Baptist Type = "BAPTIST"
	Steward Type = "STEWARD"
)

// Types lists every supported hospital.
func Types() []Type { return []Type{Jackson, Baptist, Steward} }

// ParseType matches s case-insensitively against the supported hospitals.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case Jackson, Baptist, Steward:
		return t, nil
	}
	return "", services.Wrap(services.ErrValidation, "hospital", "parse type",
		fmt.Sprintf("unsupported hospital type %q", s), nil)
}

// Key is the lower-case catalog section name.
func (t Type) Key() string { return strings.ToLower(string(t)) }

// Request is the doctor context handed to a stage.
type Request struct {
	DoctorID        string
	DoctorName      string
	DoctorSpecialty string
	Credentials     []backend.Credential
}

func (r Request) params(names []string) flow.Params {
	return flow.Params{
		DoctorID:        r.DoctorID,
		DoctorName:      r.DoctorName,
		DoctorSpecialty: r.DoctorSpecialty,
		Credentials:     r.Credentials,
		PatientNames:    names,
	}
}

// Extractor is the capability every hospital variant provides.
type Extractor interface {
	Type() Type
	PatientList(ctx context.Context, req Request) ([]patients.Patient, error)
	Summaries(ctx context.Context, req Request, names []string) (BatchReport, error)
	Insurance(ctx context.Context, req Request, names []string) (BatchReport, error)
}

// Ingester delivers stage results to the backend.
type Ingester interface {
	Ingest(ctx context.Context, dataType, hospitalType string, payload any) error
}

// DocumentReader OCRs a PDF.
type DocumentReader interface {
	RecognizeDocument(ctx context.Context, pdf []byte) (string, error)
}

// Deps are the collaborators shared by every variant.
type Deps struct {
	Runner    *flow.Runner
	Engine    *waiter.Engine
	Catalog   *catalog.Catalog
	Patients  *patients.Extractor
	Documents DocumentReader
	Backend   Ingester
	// Rescue is the default escalation policy before catalog overrides.
	Rescue   waiter.RescuePolicy
	Logger   *slog.Logger
	ReadFile func(path string) ([]byte, error)
}

// New returns the variant for t.
func New(t Type, deps Deps) (Extractor, error) {
	if deps.Runner == nil || deps.Engine == nil || deps.Catalog == nil {
		return nil, services.Wrap(services.ErrConfiguration, "hospital", "new",
			"runner, wait engine and catalog are required", nil)
	}
	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}
	if deps.Rescue.Attempts == 0 {
		deps.Rescue = waiter.DefaultRescuePolicy()
	}
	s := session{kind: t, deps: deps}
	switch t {
	case Steward:
		return &steward{session: s}, nil
	case Jackson, Baptist:
		return &desktop{session: s}, nil
	default:
		return nil, services.Wrap(services.ErrValidation, "hospital", "new",
			fmt.Sprintf("unsupported hospital type %q", t), nil)
	}
}
