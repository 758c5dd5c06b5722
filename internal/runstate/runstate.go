// Package runstate publishes the current flow status for observers such as
// the status API. Only the active flow writes; readers get copies.
package runstate

import (
	"sync/atomic"
	"time"
)

// Status is the coarse flow state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
)

// Snapshot is an immutable view of the published status.
type Snapshot struct {
	Status     Status    `json:"status"`
	FlowID     string    `json:"flow_id,omitempty"`
	Flow       string    `json:"flow,omitempty"`
	Hospital   string    `json:"hospital,omitempty"`
	Step       string    `json:"step,omitempty"`
	DoctorID   string    `json:"doctor_id,omitempty"`
	DoctorName string    `json:"doctor_name,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// Board holds the published snapshot. The zero value reads as idle.
type Board struct {
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// NewBoard returns an idle board.
func NewBoard() *Board {
	b := &Board{now: time.Now}
	b.Reset()
	return b
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	if snap := b.current.Load(); snap != nil {
		return *snap
	}
	return Snapshot{Status: StatusIdle}
}

// Publish replaces the snapshot, stamping UpdatedAt.
func (b *Board) Publish(s Snapshot) {
	s.UpdatedAt = b.clock()
	b.current.Store(&s)
}

// SetStep records the step now executing.
func (b *Board) SetStep(step string) {
	next := b.Snapshot()
	next.Step = step
	b.Publish(next)
}

// Reset publishes idle with every subject field cleared.
func (b *Board) Reset() {
	b.Publish(Snapshot{Status: StatusIdle})
}

func (b *Board) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}
