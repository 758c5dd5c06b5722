package api

import (
	"time"

	"rpanode/internal/deps"
	"rpanode/internal/extraction"
	"rpanode/internal/nodestore"
	"rpanode/internal/runstate"
	"rpanode/internal/stage"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromSnapshot converts the status board snapshot.
func FromSnapshot(s runstate.Snapshot) FlowStatus {
	return FlowStatus{
		Status:     string(s.Status),
		FlowID:     s.FlowID,
		Flow:       s.Flow,
		Hospital:   s.Hospital,
		Step:       s.Step,
		DoctorID:   s.DoctorID,
		DoctorName: s.DoctorName,
		StartedAt:  formatTime(s.StartedAt),
		UpdatedAt:  formatTime(s.UpdatedAt),
	}
}

// FromCycle converts orchestrator state and, when present, the last report.
// Names are included only when withNames is set; they are patient data.
func FromCycle(state extraction.CycleState, last *extraction.CycleReport, withNames bool) CycleStatus {
	out := CycleStatus{
		Phase:       state.Phase,
		Assigned:    state.Assigned,
		DoctorID:    state.DoctorID,
		DoctorName:  state.DoctorName,
		Hospitals:   append([]string{}, state.Hospitals...),
		PatientsBy:  make(map[string]int, len(state.Names)),
		Cycles:      state.Cycles,
		LastCycleAt: formatTime(state.LastCycleAt),
	}
	for h, names := range state.Names {
		out.PatientsBy[h] = len(names)
	}
	if withNames {
		out.Names = state.Names
	}
	if last != nil {
		summary := &CycleSummary{
			StartedAt:  formatTime(last.StartedAt),
			Idle:       last.Idle,
			IdleReason: last.IdleReason,
			Stopped:    last.Stopped,
			Failures:   last.Failures(),
			Tasks:      make([]TaskStatus, 0, len(last.Tasks)),
		}
		for _, t := range last.Tasks {
			summary.Tasks = append(summary.Tasks, TaskStatus{
				Hospital:        t.Hospital,
				Stage:           string(t.Stage),
				Succeeded:       t.Succeeded,
				Skipped:         t.Skipped,
				SkipReason:      t.SkipReason,
				Error:           t.Error,
				Names:           t.Names,
				DurationSeconds: int64(t.Duration / time.Second),
			})
		}
		out.LastCycle = summary
	}
	return out
}

// StageHealthSlice converts readiness entries.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromDependencies converts binary availability reports.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Detail:      s.Detail,
		})
	}
	return out
}

// FromRunRecord converts a journal row.
func FromRunRecord(r nodestore.RunRecord) Run {
	out := Run{
		ID:              r.ID,
		Flow:            r.Flow,
		Hospital:        r.Hospital,
		DoctorID:        r.DoctorID,
		Status:          string(r.Status),
		Step:            r.Step,
		Error:           r.Error,
		StartedAt:       formatTime(r.StartedAt),
		DurationSeconds: int64(r.Duration() / time.Second),
	}
	if r.FinishedAt != nil {
		out.FinishedAt = formatTime(*r.FinishedAt)
	}
	return out
}

// FromRunRecords converts journal rows, preserving order.
func FromRunRecords(records []nodestore.RunRecord) []Run {
	out := make([]Run, 0, len(records))
	for _, r := range records {
		out = append(out, FromRunRecord(r))
	}
	return out
}
