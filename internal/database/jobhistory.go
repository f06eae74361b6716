package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const jobHistorySchema = `
CREATE TABLE IF NOT EXISTS job_history (
	id          TEXT PRIMARY KEY,
	job_name    TEXT NOT NULL,
	cycle       TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	assets      INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_job_history_started ON job_history(started_at);
CREATE INDEX IF NOT EXISTS idx_job_history_name ON job_history(job_name);
`

// JobRecord is one scheduler job execution.
type JobRecord struct {
	ID         string
	JobName    string
	Cycle      string
	StartedAt  time.Time
	FinishedAt time.Time
	Assets     int
	Succeeded  int
	Failed     int
	Err        string
}

// Duration returns the job's wall-clock run time.
func (r JobRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// JobHistory records scheduler job executions.
type JobHistory struct {
	db  *DB
	log zerolog.Logger
}

// NewJobHistory creates the repository and applies its schema.
func NewJobHistory(db *DB, log zerolog.Logger) (*JobHistory, error) {
	if _, err := db.Conn().Exec(jobHistorySchema); err != nil {
		return nil, fmt.Errorf("job history schema: %w", err)
	}
	return &JobHistory{
		db:  db,
		log: log.With().Str("component", "job_history").Logger(),
	}, nil
}

// Record persists one job execution.
func (h *JobHistory) Record(ctx context.Context, rec JobRecord) error {
	_, err := h.db.Conn().ExecContext(ctx, `
		INSERT INTO job_history (id, job_name, cycle, started_at, finished_at, assets, succeeded, failed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobName, rec.Cycle,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		rec.Assets, rec.Succeeded, rec.Failed, rec.Err,
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.JobName, err)
	}
	return nil
}

// Recent returns the latest executions, newest first.
func (h *JobHistory) Recent(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Conn().QueryContext(ctx, `
		SELECT id, job_name, cycle, started_at, finished_at, assets, succeeded, failed, error
		FROM job_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.JobName, &rec.Cycle,
			&rec.StartedAt, &rec.FinishedAt,
			&rec.Assets, &rec.Succeeded, &rec.Failed, &rec.Err); err != nil {
			return nil, fmt.Errorf("scan job history row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// historyRetention bounds how far back job runs are kept.
const historyRetention = 90 * 24 * time.Hour

// Maintain prunes runs past the retention window and truncates the WAL.
// The weekly maintenance job calls this after its sweep.
func (h *JobHistory) Maintain(ctx context.Context) error {
	if _, err := h.Prune(ctx, time.Now().Add(-historyRetention)); err != nil {
		return err
	}
	return h.db.Checkpoint()
}

// Prune deletes records older than the cutoff and reports how many were
// removed.
func (h *JobHistory) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.Conn().ExecContext(ctx,
		`DELETE FROM job_history WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune job history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune job history: %w", err)
	}
	if n > 0 {
		h.log.Debug().Int64("removed", n).Msg("Job history pruned")
	}
	return n, nil
}
