package postgres

import (
	"context"
	"fmt"

	"autoplane/internal/store"

	"github.com/google/uuid"
)

const runColumns = `id, job_id, site_id, source, status, error, summary,
	messages_uri, attempt, started_at, finished_at, duration_ms, created_at`

func scanRun(row rowScanner) (*store.RunRecord, error) {
	var run store.RunRecord
	err := row.Scan(
		&run.ID, &run.JobID, &run.SiteID, &run.Source, &run.Status,
		&run.Error, &run.Summary, &run.MessagesURI, &run.Attempt,
		&run.StartedAt, &run.FinishedAt, &run.DurationMs, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// InsertRun appends an immutable run record.
func (s *Store) InsertRun(ctx context.Context, run *store.RunRecord) error {
	query := `
		INSERT INTO job_runs (
			id, job_id, site_id, source, status, error, summary,
			messages_uri, attempt, started_at, finished_at, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.JobID, run.SiteID, run.Source, run.Status,
		run.Error, run.Summary, run.MessagesURI, run.Attempt,
		run.StartedAt, run.FinishedAt, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s failed: %w", run.ID, err)
	}
	return nil
}

// GetRunByID returns a run record by its ID.
func (s *Store) GetRunByID(ctx context.Context, id uuid.UUID) (*store.RunRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM job_runs WHERE id = $1", runColumns)
	return scanRun(s.db.QueryRowContext(ctx, query, id))
}

// ListRunsForJob returns the most recent runs of a job, newest first.
func (s *Store) ListRunsForJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*store.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM job_runs
		WHERE job_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, runColumns)

	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*store.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
