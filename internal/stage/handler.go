package stage

import (
	"context"

	"rpanode/internal/services/backend"
)

// Task is one stage of work for one doctor at one hospital.
type Task struct {
	Stage           Name
	Hospital        string
	DoctorID        string
	DoctorName      string
	DoctorSpecialty string
	Credentials     []backend.Credential
	PatientNames    []string
}

// Handler performs one stage. Stage 1 handlers return the extracted patient
// names; batch stages return nil.
type Handler interface {
	Execute(ctx context.Context, task Task) ([]string, error)
}
