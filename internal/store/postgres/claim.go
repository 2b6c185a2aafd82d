package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoplane/internal/store"

	"github.com/google/uuid"
)

// ClaimDueJobs claims up to limit due jobs in one round trip via the
// claim_due_jobs function. Row-level SKIP LOCKED inside the function
// guarantees concurrent callers never double-claim.
func (s *Store) ClaimDueJobs(ctx context.Context, serverID string, limit, bufferSeconds int) ([]*store.AutomationJob, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM claim_due_jobs($1, $2, $3)", jobColumns)

	rows, err := s.db.QueryContext(ctx, query, serverID, limit, bufferSeconds)
	if err != nil {
		return nil, fmt.Errorf("batch claim query failed: %w", err)
	}
	defer rows.Close()

	var jobs []*store.AutomationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("batch claim scan failed: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch claim rows error: %w", err)
	}

	return jobs, nil
}

// ClaimJob conditionally claims a single job: the lease fields are set
// only if the job is currently unleased. Returns (nil, nil) when the
// conditional update matches zero rows; another caller won the race.
func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID, opts store.ClaimOptions) (*store.AutomationJob, error) {
	runID := uuid.New()

	query := fmt.Sprintf(`
		UPDATE automation_jobs
		SET run_id           = $2,
		    claimed_by       = $3,
		    running_at       = NOW(),
		    status           = 'running',
		    lease_expires_at = NOW() + make_interval(secs => timeout_seconds + $4),
		    updated_at       = NOW()
		WHERE id = $1
		  AND is_active = TRUE
		  AND status <> 'disabled'
		  AND running_at IS NULL
		RETURNING %s
	`, jobColumns)

	bufferSeconds := int(opts.LeaseBuffer.Seconds())

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id, runID, opts.ServerID, bufferSeconds))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job %s failed: %w", id, err)
	}

	return job, nil
}

// ReleaseClaim clears the lease without touching scheduling state,
// conditional on the run ID the caller itself created. A blind clear
// could release a lease a different process has since acquired.
func (s *Store) ReleaseClaim(ctx context.Context, id, runID uuid.UUID) error {
	query := `
		UPDATE automation_jobs
		SET run_id           = NULL,
		    claimed_by       = NULL,
		    running_at       = NULL,
		    lease_expires_at = NULL,
		    status           = 'idle',
		    updated_at       = NOW()
		WHERE id = $1 AND run_id = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, runID)
	if err != nil {
		return fmt.Errorf("release claim for job %s failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrLeaseLost
	}
	return nil
}

// ExtendLease pushes lease_expires_at forward, conditional on the run
// ID still matching. ErrLeaseLost tells the heartbeat its lease was
// superseded and it must stop extending.
func (s *Store) ExtendLease(ctx context.Context, id, runID uuid.UUID, until time.Time) error {
	query := `
		UPDATE automation_jobs
		SET lease_expires_at = $3,
		    updated_at       = NOW()
		WHERE id = $1 AND run_id = $2
	`

	res, err := s.db.ExecContext(ctx, query, id, runID, until)
	if err != nil {
		return fmt.Errorf("extend lease for job %s failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrLeaseLost
	}
	return nil
}

// FinishJob applies the post-run lifecycle transition and clears the
// lease, conditional on the run ID. Zero rows means another runner has
// superseded this lease; the caller abandons the finish.
func (s *Store) FinishJob(ctx context.Context, id, runID uuid.UUID, patch store.FinishPatch) error {
	query := `
		UPDATE automation_jobs
		SET run_id               = NULL,
		    claimed_by           = NULL,
		    running_at           = NULL,
		    lease_expires_at     = NULL,
		    is_active            = $3,
		    status               = $4,
		    next_run_at          = $5,
		    last_run_at          = $6,
		    last_run_status      = $7,
		    last_run_error       = $8,
		    last_run_duration_ms = $9,
		    consecutive_failures = $10,
		    updated_at           = NOW()
		WHERE id = $1 AND run_id = $2
	`

	res, err := s.db.ExecContext(ctx, query,
		id, runID,
		patch.IsActive, patch.Status, patch.NextRunAt,
		patch.LastRunAt, patch.LastRunStatus, patch.LastRunError,
		patch.LastRunDurationMs, patch.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("finish job %s failed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrLeaseLost
	}
	return nil
}

// ReapExpiredLeases clears leases whose holders are presumed dead. The
// reaped jobs return to idle and become claimable again on the next
// tick. Returns the affected job IDs for logging.
func (s *Store) ReapExpiredLeases(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		UPDATE automation_jobs
		SET run_id           = NULL,
		    claimed_by       = NULL,
		    running_at       = NULL,
		    lease_expires_at = NULL,
		    status           = 'idle',
		    updated_at       = NOW()
		WHERE running_at IS NOT NULL
		  AND lease_expires_at IS NOT NULL
		  AND lease_expires_at < $1
		RETURNING id
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reap query failed: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reap scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
