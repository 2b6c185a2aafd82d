// Package scheduler drives the wake-loop: it sleeps until the next
// job is due, claims due work, executes it concurrently up to a cap,
// and re-arms. One Service per scheduler process; all cross-process
// coordination happens through the store's conditional writes.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"autoplane/internal/executor"
	"autoplane/internal/logger"
	"autoplane/internal/observability"
	"autoplane/internal/runner"
	"autoplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotClaimed is returned by Trigger when another runner already
// holds the job's lease.
var ErrNotClaimed = errors.New("job is already claimed or not claimable")

// DefaultMaxTimer caps a single sleep. Matches the largest interval a
// 32-bit millisecond timer can represent; longer waits re-arm.
const DefaultMaxTimer = time.Duration(1<<31-1) * time.Millisecond

// Config holds the wake-loop tunables.
type Config struct {
	// MaxConcurrentRuns caps jobs executing at once in this process.
	MaxConcurrentRuns int

	// IdleInterval is the re-check period when nothing is scheduled,
	// so newly created jobs are picked up promptly.
	IdleInterval time.Duration

	// ReapGrace is how long past lease expiry the reaper waits before
	// clearing a lease.
	ReapGrace time.Duration

	// HeartbeatInterval is passed through to per-run heartbeats.
	HeartbeatInterval time.Duration

	// MaxTimer clamps a single sleep.
	MaxTimer time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 5
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 5 * time.Minute
	}
	if c.ReapGrace <= 0 {
		c.ReapGrace = time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MaxTimer <= 0 {
		c.MaxTimer = DefaultMaxTimer
	}
}

// Service is the scheduler. Its timer handle, config, and running-run
// accounting are all fields here; there is no module-level mutable
// state.
type Service struct {
	cfg      Config
	jobs     store.JobStore
	claims   *runner.ClaimManager
	orch     *executor.Orchestrator
	finisher *runner.Finisher
	metrics  *observability.Metrics
	logger   *slog.Logger

	poke    chan struct{}
	running atomic.Int64
	started atomic.Bool
	wg      sync.WaitGroup
}

// New constructs the scheduler service.
func New(cfg Config, jobs store.JobStore, claims *runner.ClaimManager, orch *executor.Orchestrator, finisher *runner.Finisher, metrics *observability.Metrics, log *slog.Logger) *Service {
	cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		jobs:     jobs,
		claims:   claims,
		orch:     orch,
		finisher: finisher,
		metrics:  metrics,
		logger:   log,
		poke:     make(chan struct{}, 1),
	}
}

// Run blocks until the context is cancelled, then waits for in-flight
// runs to finish (graceful drain).
func (s *Service) Run(ctx context.Context) error {
	s.started.Store(true)
	defer s.started.Store(false)

	s.logger.Info("scheduler started",
		"max_concurrent", s.cfg.MaxConcurrentRuns,
		"idle_interval", s.cfg.IdleInterval)

	// Process anything already due before the first sleep.
	s.tick(ctx)

	for {
		timer := time.NewTimer(s.nextWake(ctx))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopping; draining running jobs",
				"running", s.running.Load())
			s.wg.Wait()
			return ctx.Err()

		case <-timer.C:
			s.tick(ctx)

		case <-s.poke:
			timer.Stop()
			s.tick(ctx)
		}
	}
}

// Poke requests an immediate due-check. Non-blocking; concurrent pokes
// coalesce.
func (s *Service) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

// Started reports whether the wake-loop is running.
func (s *Service) Started() bool {
	return s.started.Load()
}

// RunningJobs returns the number of runs executing in this process.
func (s *Service) RunningJobs() int {
	return int(s.running.Load())
}

// Trigger claims and executes a single job outside the wake-loop
// (manual or internal trigger). Returns the run ID; ErrNotClaimed if
// another runner holds the lease.
func (s *Service) Trigger(ctx context.Context, jobID uuid.UUID, source store.TriggerSource) (uuid.UUID, error) {
	rc, err := s.claims.Claim(ctx, jobID, source)
	if err != nil {
		return uuid.Nil, err
	}
	if rc == nil {
		return uuid.Nil, ErrNotClaimed
	}

	s.wg.Add(1)
	s.running.Add(1)
	// Detached from the request context: the run outlives the HTTP
	// call that triggered it.
	go s.execute(context.Background(), rc)

	return rc.RunID, nil
}

// tick reaps stale leases, then claims and dispatches due work up to
// the free concurrency slots.
func (s *Service) tick(ctx context.Context) {
	reaped, err := s.jobs.ReapExpiredLeases(ctx, time.Now().Add(-s.cfg.ReapGrace))
	if err != nil {
		s.logger.Error("reap failed", "error", err)
	} else if len(reaped) > 0 {
		s.logger.Warn("reaped expired leases", "count", len(reaped), "job_ids", reaped)
		s.metrics.Reaped(ctx, int64(len(reaped)))
	}

	free := s.cfg.MaxConcurrentRuns - int(s.running.Load())
	if free <= 0 {
		return
	}

	runs, err := s.claims.ClaimDue(ctx, free)
	if err != nil {
		s.logger.Error("batch claim failed", "error", err)
		return
	}
	if len(runs) == 0 {
		return
	}

	s.logger.Info("claimed due jobs", "count", len(runs))
	for _, rc := range runs {
		s.wg.Add(1)
		s.running.Add(1)
		go s.execute(ctx, rc)
	}
}

// execute runs one claimed job end to end: heartbeat, orchestrated
// execution, finish. The finish itself uses a background context so
// the state transition persists even during shutdown.
func (s *Service) execute(ctx context.Context, rc *runner.RunContext) {
	defer s.wg.Done()
	defer func() {
		s.running.Add(-1)
		// A slot just freed; see if more work is waiting.
		s.Poke()
	}()

	ctx = logger.WithRunID(ctx, rc.RunID.String())
	log := logger.FromContext(ctx, s.logger)

	tracer := otel.Tracer("autoplane-scheduler")
	ctx, span := tracer.Start(ctx, "job_run",
		trace.WithAttributes(
			attribute.String("job.id", rc.Job.ID.String()),
			attribute.String("run.id", rc.RunID.String()),
			attribute.String("site.id", rc.Job.SiteID),
			attribute.String("trigger.source", string(rc.Source)),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	s.metrics.RunStarted(ctx)
	s.metrics.RunningDelta(ctx, 1)
	defer s.metrics.RunningDelta(context.Background(), -1)

	log.Info("run started", "job_id", rc.Job.ID, "job", rc.Job.Name, "source", rc.Source)

	s.finisher.RecordStart(rc)
	runner.StartHeartbeat(s.jobs, rc, s.cfg.HeartbeatInterval, s.claims.LeaseBuffer(), s.metrics, log)

	startedAt := time.Now().UTC()
	res, err := s.orch.Run(ctx, rc.Request())
	out := runner.Outcome{
		Result:     res,
		Err:        err,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		span.RecordError(err)
		log.Warn("run failed", "job_id", rc.Job.ID, "error", err)
	} else {
		log.Info("run succeeded", "job_id", rc.Job.ID,
			"duration_ms", out.FinishedAt.Sub(startedAt).Milliseconds())
	}

	if ferr := s.finisher.Finish(context.Background(), rc, out); ferr != nil {
		log.Error("finish failed", "job_id", rc.Job.ID, "error", ferr)
	}
}

// nextWake computes how long to sleep: until min(next_run_at) across
// active jobs, clamped to the max timer; the idle interval when
// nothing is scheduled.
func (s *Service) nextWake(ctx context.Context) time.Duration {
	next, err := s.jobs.NextDueTime(ctx)
	if err != nil {
		s.logger.Error("next due query failed", "error", err)
		return 30 * time.Second
	}
	if next == nil {
		return s.cfg.IdleInterval
	}

	d := time.Until(*next)
	if d < time.Second {
		d = time.Second
	}
	if d > s.cfg.MaxTimer {
		d = s.cfg.MaxTimer
	}
	return d
}
