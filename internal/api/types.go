package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// FlowStatus is the flow currently published on the status board.
type FlowStatus struct {
	Status     string `json:"status"`
	FlowID     string `json:"flowId,omitempty"`
	Flow       string `json:"flow,omitempty"`
	Hospital   string `json:"hospital,omitempty"`
	Step       string `json:"step,omitempty"`
	DoctorID   string `json:"doctorId,omitempty"`
	DoctorName string `json:"doctorName,omitempty"`
	StartedAt  string `json:"startedAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// CycleStatus summarizes the extraction loop.
type CycleStatus struct {
	Phase       string              `json:"phase"`
	Assigned    bool                `json:"assigned"`
	DoctorID    string              `json:"doctorId,omitempty"`
	DoctorName  string              `json:"doctorName,omitempty"`
	Hospitals   []string            `json:"hospitals"`
	PatientsBy  map[string]int      `json:"patientCounts"`
	Names       map[string][]string `json:"patientNames,omitempty"`
	Cycles      int                 `json:"cycles"`
	LastCycleAt string              `json:"lastCycleAt,omitempty"`
	LastCycle   *CycleSummary       `json:"lastCycle,omitempty"`
}

// CycleSummary is the outcome of the most recent cycle.
type CycleSummary struct {
	StartedAt  string       `json:"startedAt"`
	Idle       bool         `json:"idle"`
	IdleReason string       `json:"idleReason,omitempty"`
	Stopped    bool         `json:"stopped"`
	Failures   int          `json:"failures"`
	Tasks      []TaskStatus `json:"tasks"`
}

// TaskStatus is one stage of one hospital in a cycle.
type TaskStatus struct {
	Hospital        string `json:"hospital"`
	Stage           string `json:"stage"`
	Succeeded       bool   `json:"succeeded"`
	Skipped         bool   `json:"skipped,omitempty"`
	SkipReason      string `json:"skipReason,omitempty"`
	Error           string `json:"error,omitempty"`
	Names           int    `json:"names,omitempty"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// StageHealth mirrors readiness reporting for hospital variants.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// NodeStatus aggregates daemon runtime information for API consumers.
type NodeStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	NodeID       string             `json:"nodeId"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Flow         FlowStatus         `json:"flow"`
	Cycle        CycleStatus        `json:"cycle"`
	StageHealth  []StageHealth      `json:"stageHealth"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Run describes a journaled flow run.
type Run struct {
	ID              string `json:"id"`
	Flow            string `json:"flow"`
	Hospital        string `json:"hospital"`
	DoctorID        string `json:"doctorId,omitempty"`
	Status          string `json:"status"`
	Step            string `json:"step,omitempty"`
	Error           string `json:"error,omitempty"`
	StartedAt       string `json:"startedAt"`
	FinishedAt      string `json:"finishedAt,omitempty"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// RunListResponse wraps a collection of runs.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// InterruptResponse reports whether a running flow was asked to stop.
type InterruptResponse struct {
	Interrupted bool   `json:"interrupted"`
	Message     string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
