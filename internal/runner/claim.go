package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"autoplane/internal/store"

	"github.com/google/uuid"
)

// WorkspaceResolver maps a site ID to its workspace directory.
type WorkspaceResolver interface {
	Resolve(siteID string) (string, error)
}

// ClaimManager acquires and releases job leases. Both acquisition
// paths guarantee at most one holder at a time; the store's
// conditional writes are the only synchronization mechanism.
type ClaimManager struct {
	jobs        store.JobStore
	workspaces  WorkspaceResolver
	serverID    string
	leaseBuffer time.Duration
	logger      *slog.Logger
}

// NewClaimManager creates a claim manager for this scheduler process.
func NewClaimManager(jobs store.JobStore, workspaces WorkspaceResolver, serverID string, leaseBuffer time.Duration, logger *slog.Logger) *ClaimManager {
	if leaseBuffer <= 0 {
		leaseBuffer = 2 * time.Minute
	}
	return &ClaimManager{
		jobs:        jobs,
		workspaces:  workspaces,
		serverID:    serverID,
		leaseBuffer: leaseBuffer,
		logger:      logger,
	}
}

// ClaimDue claims up to limit due jobs and resolves their workspaces.
// A job whose workspace cannot be resolved is released immediately,
// conditional on the run ID this very call created, and dropped from
// the batch: a job must never stay claimed if it cannot execute.
func (m *ClaimManager) ClaimDue(ctx context.Context, limit int) ([]*RunContext, error) {
	jobs, err := m.jobs.ClaimDueJobs(ctx, m.serverID, limit, int(m.leaseBuffer.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("batch claim failed: %w", err)
	}

	var runs []*RunContext
	for _, job := range jobs {
		rc, err := m.buildContext(job, store.SourceScheduler)
		if err != nil {
			m.logger.Warn("releasing unclaimable job",
				"job_id", job.ID, "site_id", job.SiteID, "error", err)
			m.release(ctx, job)
			continue
		}
		runs = append(runs, rc)
	}
	return runs, nil
}

// Claim attempts to claim a single job (manual or internal trigger).
// Returns (nil, nil) when another caller already holds the lease.
func (m *ClaimManager) Claim(ctx context.Context, jobID uuid.UUID, source store.TriggerSource) (*RunContext, error) {
	job, err := m.jobs.ClaimJob(ctx, jobID, store.ClaimOptions{
		ServerID:    m.serverID,
		LeaseBuffer: m.leaseBuffer,
	})
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	rc, err := m.buildContext(job, source)
	if err != nil {
		m.release(ctx, job)
		return nil, err
	}
	return rc, nil
}

// LeaseBuffer returns the configured buffer added to job timeouts.
func (m *ClaimManager) LeaseBuffer() time.Duration {
	return m.leaseBuffer
}

func (m *ClaimManager) buildContext(job *store.AutomationJob, source store.TriggerSource) (*RunContext, error) {
	if job.RunID == nil {
		return nil, fmt.Errorf("claimed job %s has no run id", job.ID)
	}

	ws, err := m.workspaces.Resolve(job.SiteID)
	if err != nil {
		return nil, fmt.Errorf("workspace resolution failed: %w", err)
	}

	claimedAt := time.Now()
	if job.RunningAt != nil {
		claimedAt = *job.RunningAt
	}

	return &RunContext{
		Job:       job,
		RunID:     *job.RunID,
		ServerID:  m.serverID,
		Workspace: ws,
		ClaimedAt: claimedAt,
		Timeout:   job.Timeout(),
		Source:    source,
	}, nil
}

func (m *ClaimManager) release(ctx context.Context, job *store.AutomationJob) {
	if job.RunID == nil {
		return
	}
	err := m.jobs.ReleaseClaim(ctx, job.ID, *job.RunID)
	if err != nil && !errors.Is(err, store.ErrLeaseLost) {
		m.logger.Error("failed to release claim", "job_id", job.ID, "error", err)
	}
}
