package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"autoplane/internal/executor"
	"autoplane/internal/runlog"
	"autoplane/internal/store"

	"github.com/google/uuid"
)

// fakeJobStore records FinishJob calls; every other JobStore method is
// unused by the finisher.
type fakeJobStore struct {
	store.JobStore

	mu            sync.Mutex
	finishErr     error
	finishedID    uuid.UUID
	finishedRunID uuid.UUID
	finishedPatch *store.FinishPatch
	extendErr     error
	extendCalls   int
}

func (f *fakeJobStore) FinishJob(ctx context.Context, id, runID uuid.UUID, patch store.FinishPatch) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.finishedID = id
	f.finishedRunID = runID
	f.finishedPatch = &patch
	return nil
}

func (f *fakeJobStore) ExtendLease(ctx context.Context, id, runID uuid.UUID, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extendCalls++
	return f.extendErr
}

func (f *fakeJobStore) extensions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extendCalls
}

type fakeRunStore struct {
	store.RunStore

	inserted []*store.RunRecord
}

func (f *fakeRunStore) InsertRun(ctx context.Context, run *store.RunRecord) error {
	f.inserted = append(f.inserted, run)
	return nil
}

type fakeNotifier struct {
	calls  int
	lastID uuid.UUID
}

func (f *fakeNotifier) JobDisabled(ctx context.Context, job *store.AutomationJob, runErr string) error {
	f.calls++
	f.lastID = job.ID
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type finisherFixture struct {
	jobs     *fakeJobStore
	runs     *fakeRunStore
	notifier *fakeNotifier
	finisher *Finisher
}

func newFinisherFixture(t *testing.T, maxRetries int) *finisherFixture {
	t.Helper()

	runLog, err := runlog.NewWriter(t.TempDir(), 1<<20, 500)
	if err != nil {
		t.Fatal(err)
	}
	messages, err := runlog.NewMessageStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	jobs := &fakeJobStore{}
	runs := &fakeRunStore{}
	notifier := &fakeNotifier{}
	f := NewFinisher(jobs, runs, runLog, messages, notifier, nil,
		maxRetries, time.Minute, discardLogger())

	return &finisherFixture{jobs: jobs, runs: runs, notifier: notifier, finisher: f}
}

func cronJob() *store.AutomationJob {
	return &store.AutomationJob{
		ID:           uuid.New(),
		SiteID:       "site-a",
		Name:         "daily-digest",
		Trigger:      store.TriggerCron,
		CronSchedule: "0 9 * * *",
		IsActive:     true,
		Status:       store.JobStatusRunning,
	}
}

func runContextFor(job *store.AutomationJob) *RunContext {
	return &RunContext{
		Job:      job,
		RunID:    uuid.New(),
		ServerID: "test-server",
		Timeout:  job.Timeout(),
		Source:   store.SourceScheduler,
	}
}

func successOutcome() Outcome {
	started := time.Now().UTC().Add(-30 * time.Second)
	return Outcome{
		Result:     &executor.AttemptResult{Output: "all good"},
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func failureOutcome(err error) Outcome {
	out := successOutcome()
	out.Result = nil
	out.Err = err
	return out
}

func TestFinish_CronSuccessReschedules(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	job := cronJob()
	job.ConsecutiveFailures = 2
	rc := runContextFor(job)

	if err := fx.finisher.Finish(context.Background(), rc, successOutcome()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if patch == nil {
		t.Fatal("expected FinishJob to be called")
	}
	if !patch.IsActive || patch.Status != store.JobStatusIdle {
		t.Errorf("expected active idle job, got active=%v status=%s", patch.IsActive, patch.Status)
	}
	if patch.ConsecutiveFailures != 0 {
		t.Errorf("success must reset failure streak, got %d", patch.ConsecutiveFailures)
	}
	if patch.NextRunAt == nil {
		t.Fatal("cron success must reschedule")
	}
	if !patch.NextRunAt.After(time.Now()) {
		t.Errorf("next run %v is not in the future", patch.NextRunAt)
	}

	if len(fx.runs.inserted) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(fx.runs.inserted))
	}
	rec := fx.runs.inserted[0]
	if rec.Status != store.RunStatusSuccess {
		t.Errorf("expected success record, got %s", rec.Status)
	}
	if rec.ID != rc.RunID || rec.JobID != job.ID {
		t.Errorf("record identity mismatch: %+v", rec)
	}
	if fx.notifier.calls != 0 {
		t.Errorf("success must not notify, got %d calls", fx.notifier.calls)
	}
}

func TestFinish_OneTimeSuccessDeactivates(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	runAt := time.Now().Add(-time.Minute)
	job := cronJob()
	job.Trigger = store.TriggerOneTime
	job.CronSchedule = ""
	job.RunAt = &runAt
	rc := runContextFor(job)

	if err := fx.finisher.Finish(context.Background(), rc, successOutcome()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if patch.IsActive || patch.Status != store.JobStatusDisabled {
		t.Errorf("one-time job must deactivate after success, got active=%v status=%s", patch.IsActive, patch.Status)
	}
	if patch.NextRunAt != nil {
		t.Errorf("one-time job must not reschedule, got %v", patch.NextRunAt)
	}
	if fx.notifier.calls != 0 {
		t.Errorf("completing normally is not a disable event, got %d notifications", fx.notifier.calls)
	}
}

func TestFinish_WebhookSuccessStaysIdle(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	job := cronJob()
	job.Trigger = store.TriggerWebhook
	job.CronSchedule = ""
	rc := runContextFor(job)

	if err := fx.finisher.Finish(context.Background(), rc, successOutcome()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if !patch.IsActive || patch.Status != store.JobStatusIdle {
		t.Errorf("webhook job must stay active, got active=%v status=%s", patch.IsActive, patch.Status)
	}
	if patch.NextRunAt != nil {
		t.Errorf("webhook job must not self-schedule, got %v", patch.NextRunAt)
	}
}

func TestFinish_FailureBelowLimitBacksOff(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	job := cronJob()
	job.ConsecutiveFailures = 0
	rc := runContextFor(job)

	out := failureOutcome(errors.New("agent exited with code 1"))
	if err := fx.finisher.Finish(context.Background(), rc, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if !patch.IsActive || patch.Status != store.JobStatusIdle {
		t.Errorf("failed job below limit must stay schedulable, got active=%v status=%s", patch.IsActive, patch.Status)
	}
	if patch.ConsecutiveFailures != 1 {
		t.Errorf("expected failure streak 1, got %d", patch.ConsecutiveFailures)
	}
	if patch.NextRunAt == nil {
		t.Fatal("expected backoff reschedule")
	}

	// First retry: base delay 1m ±20%.
	delay := patch.NextRunAt.Sub(out.FinishedAt)
	if delay < 48*time.Second || delay > 72*time.Second {
		t.Errorf("backoff delay %v outside first-retry window", delay)
	}
	if fx.notifier.calls != 0 {
		t.Errorf("below the retry limit must not notify, got %d calls", fx.notifier.calls)
	}
	if patch.LastRunError == nil || *patch.LastRunError == "" {
		t.Error("expected error message stored")
	}
}

func TestFinish_FailureAtLimitDisablesAndNotifies(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	job := cronJob()
	job.ConsecutiveFailures = 2
	rc := runContextFor(job)

	out := failureOutcome(errors.New("agent exited with code 1"))
	if err := fx.finisher.Finish(context.Background(), rc, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if patch.IsActive || patch.Status != store.JobStatusDisabled {
		t.Errorf("expected disabled job, got active=%v status=%s", patch.IsActive, patch.Status)
	}
	if patch.NextRunAt != nil {
		t.Errorf("disabled job must not reschedule, got %v", patch.NextRunAt)
	}
	if patch.ConsecutiveFailures != 3 {
		t.Errorf("expected failure streak 3, got %d", patch.ConsecutiveFailures)
	}

	if fx.notifier.calls != 1 {
		t.Fatalf("expected exactly one disable notification, got %d", fx.notifier.calls)
	}
	if fx.notifier.lastID != job.ID {
		t.Errorf("notified wrong job: %s", fx.notifier.lastID)
	}

	if len(fx.runs.inserted) != 1 {
		t.Fatalf("expected 1 run record, got %d", len(fx.runs.inserted))
	}
	if fx.runs.inserted[0].Attempt != 3 {
		t.Errorf("expected attempt 3 recorded, got %d", fx.runs.inserted[0].Attempt)
	}
}

func TestFinish_LeaseLostAbandons(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	fx.jobs.finishErr = store.ErrLeaseLost
	rc := runContextFor(cronJob())

	if err := fx.finisher.Finish(context.Background(), rc, successOutcome()); err != nil {
		t.Fatalf("lease loss must not surface as an error, got: %v", err)
	}

	if len(fx.runs.inserted) != 0 {
		t.Errorf("abandoned finish must not insert run records, got %d", len(fx.runs.inserted))
	}
	if fx.notifier.calls != 0 {
		t.Errorf("abandoned finish must not notify, got %d calls", fx.notifier.calls)
	}
}

func TestFinish_StoreErrorSurfaces(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	fx.jobs.finishErr = errors.New("connection lost")
	rc := runContextFor(cronJob())

	if err := fx.finisher.Finish(context.Background(), rc, successOutcome()); err == nil {
		t.Error("expected database error to surface")
	}
}

func TestFinish_TruncatesLongErrors(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	rc := runContextFor(cronJob())

	long := make([]byte, 10_000)
	for i := range long {
		long[i] = 'x'
	}
	out := failureOutcome(errors.New(string(long)))

	if err := fx.finisher.Finish(context.Background(), rc, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	patch := fx.jobs.finishedPatch
	if patch.LastRunError == nil {
		t.Fatal("expected stored error")
	}
	if len(*patch.LastRunError) > 2000 {
		t.Errorf("stored error not truncated: %d bytes", len(*patch.LastRunError))
	}
}

func TestFinish_RecordsTranscript(t *testing.T) {
	fx := newFinisherFixture(t, 3)
	rc := runContextFor(cronJob())

	out := successOutcome()
	out.Result.Events = []executor.Event{{Type: executor.EventMessage, Text: "hello"}}

	if err := fx.finisher.Finish(context.Background(), rc, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := fx.runs.inserted[0]
	if rec.MessagesURI == nil {
		t.Fatal("expected transcript URI on run record")
	}
}
