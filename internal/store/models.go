// Package store contains the database layer for autoplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType describes how a job is triggered.
type TriggerType string

const (
	TriggerCron    TriggerType = "cron"
	TriggerWebhook TriggerType = "webhook"
	TriggerOneTime TriggerType = "one_time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusIdle     JobStatus = "idle"
	JobStatusRunning  JobStatus = "running"
	JobStatusDisabled JobStatus = "disabled"
)

// RunStatus represents the outcome of a single run.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailure RunStatus = "failure"
)

// TriggerSource tags which path started a run.
type TriggerSource string

const (
	SourceScheduler TriggerSource = "scheduler"
	SourceManual    TriggerSource = "manual"
	SourceInternal  TriggerSource = "internal"
)

// AutomationJob is a persisted job definition plus its lease and
// scheduling state. The row is the single source of truth: a job is
// claimed iff RunID is non-nil, and only the holder of the matching
// RunID may mutate lease or lifecycle fields.
type AutomationJob struct {
	ID     uuid.UUID
	SiteID string
	UserID string
	OrgID  string
	Name   string

	Trigger      TriggerType
	CronSchedule string
	CronTimezone string
	RunAt        *time.Time

	ActionPrompt   string
	ActionModel    string
	ActionThinking bool
	TimeoutSeconds int
	Skills         []string
	ResponseTool   string

	IsActive bool
	Status   JobStatus

	RunID          *uuid.UUID
	ClaimedBy      *string
	RunningAt      *time.Time
	LeaseExpiresAt *time.Time

	NextRunAt           *time.Time
	LastRunAt           *time.Time
	LastRunStatus       *string
	LastRunError        *string
	LastRunDurationMs   *int64
	ConsecutiveFailures int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claimed reports whether the job currently holds a lease.
func (j *AutomationJob) Claimed() bool {
	return j.RunID != nil
}

// Timeout returns the effective execution timeout.
func (j *AutomationJob) Timeout() time.Duration {
	if j.TimeoutSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// RunRecord is an immutable audit row describing one finished run.
// Large message transcripts live in the file store; the row keeps
// only a URI reference.
type RunRecord struct {
	ID          uuid.UUID // the run ID, i.e. the lease identity
	JobID       uuid.UUID
	SiteID      string
	Source      TriggerSource
	Status      RunStatus
	Error       *string
	Summary     *string
	MessagesURI *string
	Attempt     int
	StartedAt   time.Time
	FinishedAt  time.Time
	DurationMs  int64
	CreatedAt   time.Time
}

// FinishPatch is the lifecycle transition applied by the finisher.
// It always clears the lease fields; the remaining fields carry the
// reschedule / backoff / disable decision.
type FinishPatch struct {
	IsActive            bool
	Status              JobStatus
	NextRunAt           *time.Time
	LastRunAt           time.Time
	LastRunStatus       RunStatus
	LastRunError        *string
	LastRunDurationMs   int64
	ConsecutiveFailures int
}

// ClaimOptions controls a single-job claim.
type ClaimOptions struct {
	ServerID    string
	LeaseBuffer time.Duration
}
