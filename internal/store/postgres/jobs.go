package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"autoplane/internal/store"

	"github.com/google/uuid"
)

// jobColumns is the canonical column list for automation_jobs scans.
const jobColumns = `id, site_id, user_id, org_id, name,
	trigger_type, cron_schedule, cron_timezone, run_at,
	action_prompt, action_model, action_thinking, timeout_seconds, skills, response_tool,
	is_active, status,
	run_id, claimed_by, running_at, lease_expires_at,
	next_run_at, last_run_at, last_run_status, last_run_error, last_run_duration_ms,
	consecutive_failures, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*store.AutomationJob, error) {
	var job store.AutomationJob
	var skillsRaw []byte

	err := row.Scan(
		&job.ID, &job.SiteID, &job.UserID, &job.OrgID, &job.Name,
		&job.Trigger, &job.CronSchedule, &job.CronTimezone, &job.RunAt,
		&job.ActionPrompt, &job.ActionModel, &job.ActionThinking, &job.TimeoutSeconds, &skillsRaw, &job.ResponseTool,
		&job.IsActive, &job.Status,
		&job.RunID, &job.ClaimedBy, &job.RunningAt, &job.LeaseExpiresAt,
		&job.NextRunAt, &job.LastRunAt, &job.LastRunStatus, &job.LastRunError, &job.LastRunDurationMs,
		&job.ConsecutiveFailures, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(skillsRaw) > 0 {
		if err := json.Unmarshal(skillsRaw, &job.Skills); err != nil {
			return nil, fmt.Errorf("failed to decode skills for job %s: %w", job.ID, err)
		}
	}

	return &job, nil
}

// CreateJob inserts a new job definition.
// The skills slice is stored as a JSON array.
func (s *Store) CreateJob(ctx context.Context, job *store.AutomationJob) error {
	skillsRaw, err := json.Marshal(job.Skills)
	if err != nil {
		return err
	}
	if job.Skills == nil {
		skillsRaw = []byte("[]")
	}

	query := `
		INSERT INTO automation_jobs (
			id, site_id, user_id, org_id, name,
			trigger_type, cron_schedule, cron_timezone, run_at,
			action_prompt, action_model, action_thinking, timeout_seconds, skills, response_tool,
			is_active, status, next_run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID, job.SiteID, job.UserID, job.OrgID, job.Name,
		job.Trigger, job.CronSchedule, job.CronTimezone, job.RunAt,
		job.ActionPrompt, job.ActionModel, job.ActionThinking, job.TimeoutSeconds, skillsRaw, job.ResponseTool,
		job.IsActive, job.Status, job.NextRunAt, job.CreatedAt, job.UpdatedAt,
	)
	return err
}

// GetJobByID returns a job by its ID.
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*store.AutomationJob, error) {
	query := fmt.Sprintf("SELECT %s FROM automation_jobs WHERE id = $1", jobColumns)
	return scanJob(s.db.QueryRowContext(ctx, query, id))
}

// NextDueTime returns the earliest next_run_at across active, unleased
// jobs, or nil when nothing is scheduled.
func (s *Store) NextDueTime(ctx context.Context) (*time.Time, error) {
	query := `
		SELECT MIN(next_run_at)
		FROM automation_jobs
		WHERE is_active = TRUE
		  AND status <> 'disabled'
		  AND running_at IS NULL
		  AND next_run_at IS NOT NULL
	`

	var next sql.NullTime
	if err := s.db.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return nil, err
	}
	if !next.Valid {
		return nil, nil
	}
	return &next.Time, nil
}
