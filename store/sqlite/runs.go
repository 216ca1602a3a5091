package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/warp/finance-tracker/finance"
)

// =============================================================================
// MATERIALIZATION RUNS
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// MaterializationRun records one MaterializeAll pass for audit and UI display.
type MaterializationRun struct {
	ID             string       `json:"id"`
	Trigger        string       `json:"trigger"` // scheduler, api, cli
	AsOf           finance.Date `json:"as_of"`
	Status         RunStatus    `json:"status"`
	TotalCreated   int          `json:"total_created"`
	RulesProcessed int          `json:"rules_processed"`
	RulesFailed    int          `json:"rules_failed"`
	Error          string       `json:"error,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// Complete copies batch totals into the run and closes it. A batch with
// failed rules still completes; Error is only set when the batch itself
// could not run.
func (r *MaterializationRun) Complete(batch finance.BatchResult, err error) {
	at := time.Now().UTC()
	r.CompletedAt = &at
	r.TotalCreated = batch.TotalCreated
	r.RulesProcessed = batch.Processed
	r.RulesFailed = batch.Failed
	if err != nil {
		r.Status = RunFailed
		r.Error = err.Error()
		return
	}
	r.Status = RunCompleted
}

// SaveRun inserts or updates a run record.
func (s *Store) SaveRun(ctx context.Context, r MaterializationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO materialization_runs (id, trigger_source, as_of, status, total_created,
			rules_processed, rules_failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_created = excluded.total_created,
			rules_processed = excluded.rules_processed,
			rules_failed = excluded.rules_failed,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		r.ID, r.Trigger, r.AsOf, r.Status, r.TotalCreated,
		r.RulesProcessed, r.RulesFailed, nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339), timeString(r.CompletedAt),
	)
	if err != nil {
		return storageErr("save materialization run", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, status RunStatus, limit int) ([]MaterializationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, trigger_source, as_of, status, total_created, rules_processed,
			rules_failed, error, started_at, completed_at
		FROM materialization_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list materialization runs", err)
	}
	defer rows.Close()

	runs := []MaterializationRun{}
	for rows.Next() {
		var (
			r                    MaterializationRun
			errText, completedAt sql.NullString
			startedAt            string
		)
		if err := rows.Scan(
			&r.ID, &r.Trigger, &r.AsOf, &r.Status, &r.TotalCreated, &r.RulesProcessed,
			&r.RulesFailed, &errText, &startedAt, &completedAt,
		); err != nil {
			return nil, storageErr("scan materialization run", err)
		}
		r.Error = errText.String
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
