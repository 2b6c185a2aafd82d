package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLeaseLost signals that a conditional write guarded by a run ID
// matched zero rows: another runner owns the job now. Callers treat
// this as an expected control-flow signal, not a failure.
var ErrLeaseLost = errors.New("lease lost: run id no longer matches")

// DBTx defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active
// transaction to the repository methods.
type DBTx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JobStore handles persistence of automation jobs and their leases.
type JobStore interface {
	// CreateJob inserts a new job definition.
	CreateJob(ctx context.Context, job *AutomationJob) error

	// GetJobByID returns a job by its ID.
	GetJobByID(ctx context.Context, id uuid.UUID) (*AutomationJob, error)

	// ClaimDueJobs atomically claims up to limit active, unleased jobs
	// whose next_run_at has passed, in one round trip. Concurrent
	// callers never receive the same job.
	ClaimDueJobs(ctx context.Context, serverID string, limit, bufferSeconds int) ([]*AutomationJob, error)

	// ClaimJob conditionally claims a single job. Returns (nil, nil)
	// when another caller holds the lease; that is not an error.
	ClaimJob(ctx context.Context, id uuid.UUID, opts ClaimOptions) (*AutomationJob, error)

	// ReleaseClaim clears the lease, conditional on runID matching.
	ReleaseClaim(ctx context.Context, id, runID uuid.UUID) error

	// ExtendLease pushes lease_expires_at forward, conditional on
	// runID matching. Returns ErrLeaseLost on zero rows.
	ExtendLease(ctx context.Context, id, runID uuid.UUID, until time.Time) error

	// FinishJob applies the post-run transition, conditional on runID
	// matching. Returns ErrLeaseLost on zero rows.
	FinishJob(ctx context.Context, id, runID uuid.UUID, patch FinishPatch) error

	// ReapExpiredLeases clears leases that expired before the given
	// cutoff and returns the affected job IDs.
	ReapExpiredLeases(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// NextDueTime returns the earliest next_run_at across active,
	// unleased jobs, or nil when nothing is scheduled.
	NextDueTime(ctx context.Context) (*time.Time, error)
}

// RunStore handles the append-only run history.
type RunStore interface {
	// InsertRun inserts an immutable run record.
	InsertRun(ctx context.Context, run *RunRecord) error

	// GetRunByID returns a run record by its ID.
	GetRunByID(ctx context.Context, id uuid.UUID) (*RunRecord, error)

	// ListRunsForJob returns the most recent runs of a job, newest first.
	ListRunsForJob(ctx context.Context, jobID uuid.UUID, limit int) ([]*RunRecord, error)
}
