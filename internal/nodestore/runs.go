package nodestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the journal state of a flow run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"

	// RunAbandoned marks rows left running by a process that exited mid-flow.
	RunAbandoned RunStatus = "abandoned"
)

// RunRecord is one journaled flow run.
type RunRecord struct {
	ID         string     `json:"id"`
	Flow       string     `json:"flow"`
	Hospital   string     `json:"hospital"`
	DoctorID   string     `json:"doctor_id,omitempty"`
	Status     RunStatus  `json:"status"`
	Step       string     `json:"step,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

const runColumns = "id, flow, hospital, doctor_id, status, step, error, started_at, finished_at"

// BeginRun journals a new running flow.
func (s *Store) BeginRun(ctx context.Context, rec RunRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("run id is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO flow_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Flow,
		rec.Hospital,
		nullableString(rec.DoctorID),
		RunRunning,
		nullableString(rec.Step),
		nil,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		nil,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, step, errText string) error {
	now := time.Now().UTC()
	res, err := s.exec(ctx,
		`UPDATE flow_runs SET status = ?, step = ?, error = ?, finished_at = ? WHERE id = ?`,
		status,
		nullableString(step),
		nullableString(strings.TrimSpace(errText)),
		nullableTime(&now),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run: unknown run %q", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM flow_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun fetches one run by id; ok is false when absent.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, bool, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM flow_runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("get run: %w", err)
	}
	return rec, true, nil
}

// AbandonStaleRuns marks rows still flagged running as abandoned. Called at
// startup, before any flow can begin.
func (s *Store) AbandonStaleRuns(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	res, err := s.exec(ctx,
		`UPDATE flow_runs SET status = ?, finished_at = ? WHERE status = ?`,
		RunAbandoned, nullableTime(&now), RunRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}
	return res.RowsAffected()
}

// PruneRuns deletes finished runs that started before cutoff.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM flow_runs WHERE status != ? AND started_at < ?`,
		RunRunning, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (RunRecord, error) {
	var (
		rec         RunRecord
		status      string
		doctorID    sql.NullString
		step        sql.NullString
		errText     sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.Flow,
		&rec.Hospital,
		&doctorID,
		&status,
		&step,
		&errText,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return RunRecord{}, err
	}
	rec.Status = RunStatus(status)
	rec.DoctorID = doctorID.String
	rec.Step = step.String
	rec.Error = errText.String
	if started, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			rec.FinishedAt = &finished
		}
	}
	return rec, nil
}
