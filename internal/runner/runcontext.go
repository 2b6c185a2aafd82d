// Package runner owns the claim → execute → finish lifecycle of a
// single job run.
package runner

import (
	"time"

	"autoplane/internal/executor"
	"autoplane/internal/store"

	"github.com/google/uuid"
)

// RunContext is the ephemeral state of one in-flight execution, owned
// by the process that claimed the job. All mutating operations go
// through conditional database writes keyed on RunID; nothing here is
// trusted across process boundaries.
type RunContext struct {
	// Job is the snapshot taken at claim time.
	Job *store.AutomationJob

	RunID     uuid.UUID
	ServerID  string
	Workspace string
	ClaimedAt time.Time
	Timeout   time.Duration
	Source    store.TriggerSource

	heartbeat *Heartbeat
}

// Request builds the execution request for this run.
func (rc *RunContext) Request() executor.Request {
	return executor.Request{
		RunID:        rc.RunID,
		JobID:        rc.Job.ID,
		SiteID:       rc.Job.SiteID,
		Workspace:    rc.Workspace,
		Prompt:       rc.Job.ActionPrompt,
		Model:        rc.Job.ActionModel,
		Thinking:     rc.Job.ActionThinking,
		Skills:       rc.Job.Skills,
		Timeout:      rc.Timeout,
		ResponseTool: rc.Job.ResponseTool,
	}
}

func (rc *RunContext) attachHeartbeat(h *Heartbeat) {
	rc.heartbeat = h
}

// StopHeartbeat cancels the lease heartbeat if one is running. Safe to
// call multiple times and with no heartbeat attached.
func (rc *RunContext) StopHeartbeat() {
	if rc.heartbeat != nil {
		rc.heartbeat.Stop()
	}
}
