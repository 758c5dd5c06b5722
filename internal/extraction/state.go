package extraction

import (
	"time"

	"rpanode/internal/stage"
)

// CycleState is what the orchestrator carries between cycles.
type CycleState struct {
	NodeID          string              `json:"node_id"`
	Assigned        bool                `json:"assigned"`
	DoctorID        string              `json:"doctor_id,omitempty"`
	DoctorName      string              `json:"doctor_name,omitempty"`
	DoctorSpecialty string              `json:"doctor_specialty,omitempty"`
	Hospitals       []string            `json:"hospitals"`
	Names           map[string][]string `json:"patient_names"`
	Cycles          int                 `json:"cycles"`
	LastCycleAt     time.Time           `json:"last_cycle_at,omitempty"`
	Phase           string              `json:"phase"`
}

func (s CycleState) clone() CycleState {
	out := s
	out.Hospitals = append([]string(nil), s.Hospitals...)
	out.Names = make(map[string][]string, len(s.Names))
	for k, v := range s.Names {
		out.Names[k] = append([]string(nil), v...)
	}
	return out
}

// TaskResult is the outcome of one stage for one hospital.
type TaskResult struct {
	Hospital   string        `json:"hospital"`
	Stage      stage.Name    `json:"stage"`
	Succeeded  bool          `json:"succeeded"`
	Skipped    bool          `json:"skipped,omitempty"`
	SkipReason string        `json:"skip_reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Names      int           `json:"names,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// CycleReport summarizes one RunCycle call.
type CycleReport struct {
	StartedAt  time.Time    `json:"started_at"`
	Idle       bool         `json:"idle"`
	IdleReason string       `json:"idle_reason,omitempty"`
	Stopped    bool         `json:"stopped"`
	Tasks      []TaskResult `json:"tasks"`
}

// Ran reports whether stage ran for hospital in this cycle.
func (r CycleReport) Ran(hospital string, name stage.Name) bool {
	for _, t := range r.Tasks {
		if t.Hospital == hospital && t.Stage == name && !t.Skipped {
			return true
		}
	}
	return false
}

// Failures counts stages that ran and failed.
func (r CycleReport) Failures() int {
	n := 0
	for _, t := range r.Tasks {
		if !t.Skipped && !t.Succeeded {
			n++
		}
	}
	return n
}
