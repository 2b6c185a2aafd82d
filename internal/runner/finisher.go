package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"autoplane/internal/executor"
	"autoplane/internal/notify"
	"autoplane/internal/observability"
	"autoplane/internal/runlog"
	"autoplane/internal/schedule"
	"autoplane/internal/store"
)

// maxStoredErrorLen bounds last_run_error so a pathological error
// message cannot bloat the job row.
const maxStoredErrorLen = 2000

// Outcome is what the orchestrator produced for one run.
type Outcome struct {
	Result     *executor.AttemptResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finisher computes the post-run state transition (reschedule /
// backoff-retry / disable) and applies it with a conditional write
// guarded by the run ID. If the write matches zero rows, another
// runner superseded this lease and the finish is silently abandoned.
type Finisher struct {
	jobs     store.JobStore
	runs     store.RunStore
	runLog   *runlog.Writer
	messages *runlog.MessageStore
	notifier notify.Notifier
	metrics  *observability.Metrics
	logger   *slog.Logger

	maxRetries int
	baseDelay  time.Duration
}

// NewFinisher wires the finisher and its collaborators.
func NewFinisher(jobs store.JobStore, runs store.RunStore, runLog *runlog.Writer, messages *runlog.MessageStore, notifier notify.Notifier, metrics *observability.Metrics, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *Finisher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Finisher{
		jobs:       jobs,
		runs:       runs,
		runLog:     runLog,
		messages:   messages,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// RecordStart appends the run-log "started" entry. Best-effort.
func (f *Finisher) RecordStart(rc *RunContext) {
	err := f.runLog.Append(rc.Job.ID.String(), runlog.Entry{
		Timestamp: time.Now().UTC(),
		JobID:     rc.Job.ID.String(),
		Action:    runlog.ActionStarted,
		Attempt:   rc.Job.ConsecutiveFailures + 1,
	})
	if err != nil {
		f.logger.Warn("run log append failed", "job_id", rc.Job.ID, "error", err)
		f.metrics.BestEffortFailed(context.Background(), "runlog")
	}
}

// Finish applies the outcome. The heartbeat is cancelled
// unconditionally first, success or failure.
func (f *Finisher) Finish(ctx context.Context, rc *RunContext, out Outcome) error {
	rc.StopHeartbeat()

	if out.FinishedAt.IsZero() {
		out.FinishedAt = time.Now().UTC()
	}

	patch, disabled := f.transition(rc.Job, out)

	err := f.jobs.FinishJob(ctx, rc.Job.ID, rc.RunID, patch)
	if errors.Is(err, store.ErrLeaseLost) {
		f.logger.Info("finish abandoned: lease superseded",
			"job_id", rc.Job.ID, "run_id", rc.RunID)
		return nil
	}
	if err != nil {
		return err
	}

	f.recordRun(ctx, rc, out, patch)

	if disabled {
		f.metrics.Disabled(ctx)
		runErr := ""
		if out.Err != nil {
			runErr = out.Err.Error()
		}
		if nerr := f.notifier.JobDisabled(ctx, rc.Job, runErr); nerr != nil {
			f.logger.Warn("disable notification failed", "job_id", rc.Job.ID, "error", nerr)
			f.metrics.BestEffortFailed(ctx, "notify")
		}
	}

	if out.Err == nil {
		f.metrics.RunSucceeded(ctx)
	} else {
		f.metrics.RunFailed(ctx)
	}

	return nil
}

// transition is the outcome → lifecycle state machine.
func (f *Finisher) transition(job *store.AutomationJob, out Outcome) (store.FinishPatch, bool) {
	now := out.FinishedAt
	patch := store.FinishPatch{
		LastRunAt:         now,
		LastRunDurationMs: now.Sub(out.StartedAt).Milliseconds(),
	}

	if out.Err == nil {
		patch.LastRunStatus = store.RunStatusSuccess
		patch.ConsecutiveFailures = 0

		switch job.Trigger {
		case store.TriggerOneTime:
			// One-time jobs never run again.
			patch.IsActive = false
			patch.Status = store.JobStatusDisabled
		case store.TriggerCron:
			patch.IsActive = true
			patch.Status = store.JobStatusIdle
			next, err := schedule.NextRun(job, now)
			if err != nil {
				f.logger.Error("failed to compute next run; job left unscheduled",
					"job_id", job.ID, "error", err)
			}
			patch.NextRunAt = next
		default:
			// Webhook jobs stay active with no automatic reschedule.
			patch.IsActive = true
			patch.Status = store.JobStatusIdle
		}
		return patch, false
	}

	msg := out.Err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	patch.LastRunStatus = store.RunStatusFailure
	patch.LastRunError = &msg

	failures := job.ConsecutiveFailures + 1
	patch.ConsecutiveFailures = failures

	if failures < f.maxRetries {
		patch.IsActive = true
		patch.Status = store.JobStatusIdle
		next := now.Add(schedule.Backoff(failures, f.baseDelay))
		patch.NextRunAt = &next
		return patch, false
	}

	patch.IsActive = false
	patch.Status = store.JobStatusDisabled
	return patch, true
}

// recordRun writes the audit trail: message transcript file, run
// record row, run-log entry. Storage failures here are logged and
// counted but never fail the job outcome.
func (f *Finisher) recordRun(ctx context.Context, rc *RunContext, out Outcome, patch store.FinishPatch) {
	var messagesURI *string
	if out.Result != nil && len(out.Result.Events) > 0 {
		uri, err := f.messages.Write(rc.RunID.String(), out.Result.Events)
		if err != nil {
			f.logger.Warn("transcript write failed", "run_id", rc.RunID, "error", err)
			f.metrics.BestEffortFailed(ctx, "transcript")
		} else {
			messagesURI = &uri
		}
	}

	record := &store.RunRecord{
		ID:          rc.RunID,
		JobID:       rc.Job.ID,
		SiteID:      rc.Job.SiteID,
		Source:      rc.Source,
		Status:      patch.LastRunStatus,
		Error:       patch.LastRunError,
		MessagesURI: messagesURI,
		Attempt:     patch.ConsecutiveFailures,
		StartedAt:   out.StartedAt,
		FinishedAt:  out.FinishedAt,
		DurationMs:  patch.LastRunDurationMs,
		CreatedAt:   time.Now().UTC(),
	}
	if record.Attempt == 0 {
		record.Attempt = 1
	}
	if s := summarize(out.Result); s != "" {
		record.Summary = &s
	}
	if err := f.runs.InsertRun(ctx, record); err != nil {
		f.logger.Warn("run record insert failed", "run_id", rc.RunID, "error", err)
		f.metrics.BestEffortFailed(ctx, "run_record")
	}

	entry := runlog.Entry{
		Timestamp:  out.FinishedAt,
		JobID:      rc.Job.ID.String(),
		Action:     runlog.ActionFinished,
		Status:     string(patch.LastRunStatus),
		DurationMs: patch.LastRunDurationMs,
		NextRunAt:  patch.NextRunAt,
		Attempt:    record.Attempt,
	}
	if patch.LastRunError != nil {
		entry.Error = *patch.LastRunError
	}
	if record.Summary != nil {
		entry.Summary = *record.Summary
	}
	if err := f.runLog.Append(rc.Job.ID.String(), entry); err != nil {
		f.logger.Warn("run log append failed", "job_id", rc.Job.ID, "error", err)
		f.metrics.BestEffortFailed(ctx, "runlog")
	}
}

// summarize derives a short human-readable summary from a result:
// the extracted tool response when present, else the head of the
// accumulated output.
func summarize(res *executor.AttemptResult) string {
	if res == nil {
		return ""
	}
	s := res.ToolResponse
	if s == "" {
		s = res.Output
	}
	const maxSummary = 280
	if len(s) > maxSummary {
		s = s[:maxSummary]
	}
	return s
}
