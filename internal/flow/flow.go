package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"rpanode/internal/logging"
	"rpanode/internal/runstate"
	"rpanode/internal/services"
	"rpanode/internal/services/backend"
)

// Flow is one hospital-specific sequence of steps.
type Flow interface {
	// Name is the human-readable flow name.
	Name() string
	// Type prefixes error screenshot keys, e.g. "steward_patient_list".
	Type() string
	// Hospital is the upper-case hospital type.
	Hospital() string
	Execute(ctx context.Context, run *Run) (Result, error)
	// NotifyCompletion delivers a successful result to the backend.
	NotifyCompletion(ctx context.Context, run *Run, result Result) error
}

// Result is what Execute produced. A nil Payload has nothing to deliver and
// skips NotifyCompletion. A non-empty ErrorMarker turns the result into a
// failure reported with that text instead of a completion.
type Result struct {
	Payload     any
	Count       int
	ErrorMarker string
}

// Params binds the subject and credentials for one run.
type Params struct {
	DoctorID        string
	DoctorName      string
	DoctorSpecialty string
	Credentials     []backend.Credential
	PatientNames    []string
}

// Run is the state of one executing flow. It is owned by the goroutine
// driving the flow.
type Run struct {
	ID              string
	Flow            string
	FlowType        string
	Hospital        string
	DoctorID        string
	DoctorName      string
	DoctorSpecialty string
	Credentials     []backend.Credential
	PatientNames    []string
	StartedAt       time.Time

	step   string
	board  *runstate.Board
	logger *slog.Logger
}

// Step returns the step now executing.
func (r *Run) Step() string { return r.step }

// Logger returns the run's logger.
func (r *Run) Logger() *slog.Logger {
	if r.logger == nil {
		return logging.NewNop()
	}
	return r.logger
}

// SetStep records and publishes the step now executing.
func (r *Run) SetStep(step string) {
	r.step = step
	if r.board != nil {
		r.board.SetStep(step)
	}
	r.Logger().Info("step started",
		logging.String(logging.FieldStep, step),
		logging.String(logging.FieldEventType, "flow_step"),
	)
}

// Do runs fn as the named step. A stop request observed before the step
// starts returns an interrupted error without running it.
func (r *Run) Do(ctx context.Context, step string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrInterrupted, "flow", step, "stop requested", err)
	}
	r.SetStep(step)
	return fn(ctx)
}

// Credential returns the fields of the credential whose systemKey matches
// exactly.
func (r *Run) Credential(systemKey string) (map[string]string, error) {
	for _, cred := range r.Credentials {
		if cred.SystemKey == systemKey {
			return cred.Fields, nil
		}
	}
	return nil, services.Wrap(services.ErrConfiguration, "flow", "credentials",
		fmt.Sprintf("Credentials for system '%s' not found in doctor configuration", systemKey), nil)
}

// CredentialField returns one required credential field.
func (r *Run) CredentialField(systemKey, field, label string) (string, error) {
	fields, err := r.Credential(systemKey)
	if err != nil {
		return "", err
	}
	value, ok := fields[field]
	if !ok || value == "" {
		return "", services.Wrap(services.ErrConfiguration, "flow", "credentials",
			fmt.Sprintf("%s credentials missing '%s' field", label, field), nil)
	}
	return value, nil
}
