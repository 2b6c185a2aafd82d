// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the scheduler control API.
package api

import "time"

// CreateJobRequest is the request body for registering a new automation job.
type CreateJobRequest struct {
	SiteID         string   `json:"site_id"`
	UserID         string   `json:"user_id,omitempty"`
	OrgID          string   `json:"org_id,omitempty"`
	Name           string   `json:"name"`
	TriggerType    string   `json:"trigger_type"`
	CronSchedule   string   `json:"cron_schedule,omitempty"`
	CronTimezone   string   `json:"cron_timezone,omitempty"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	ActionPrompt   string   `json:"action_prompt"`
	ActionModel    string   `json:"action_model,omitempty"`
	ActionThinking bool     `json:"action_thinking,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
	Skills         []string `json:"skills,omitempty"`
	ResponseTool   string   `json:"response_tool,omitempty"`
}

// CreateJobResponse is the response body after registering a job.
type CreateJobResponse struct {
	JobID     string     `json:"job_id"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// TriggerJobResponse is the response body after a manual trigger.
type TriggerJobResponse struct {
	RunID string `json:"run_id"`
}

// JobStatusResponse is the response body for job status queries.
type JobStatusResponse struct {
	ID                  string     `json:"id"`
	SiteID              string     `json:"site_id"`
	Name                string     `json:"name"`
	TriggerType         string     `json:"trigger_type"`
	IsActive            bool       `json:"is_active"`
	Status              string     `json:"status"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	LastRunStatus       *string    `json:"last_run_status,omitempty"`
	LastRunError        *string    `json:"last_run_error,omitempty"`
	LastRunDurationMs   *int64     `json:"last_run_duration_ms,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// RunResponse represents a single run record in API responses.
type RunResponse struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	Source      string     `json:"source"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	Summary     *string    `json:"summary,omitempty"`
	Attempt     int        `json:"attempt"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	MessagesURI *string    `json:"messages_uri,omitempty"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Started     bool `json:"started"`
	RunningJobs int  `json:"runningJobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
