package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"autoplane/internal/observability"
	"autoplane/internal/store"
)

// Heartbeat extends a run's lease while execution is in flight. Each
// tick pushes lease_expires_at forward, conditioned on the run ID
// still matching; if that conditional write matches zero rows the
// lease was superseded and the heartbeat stops itself. It must never
// keep extending a lease it no longer legitimately owns.
type Heartbeat struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartHeartbeat begins the lease-extension ticker for a claimed run.
// The extension per tick is the job timeout plus the lease buffer,
// matching the initial lease duration.
func StartHeartbeat(jobs store.JobStore, rc *RunContext, interval, buffer time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	h := &Heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	rc.attachHeartbeat(h)

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				// The run may outlive the caller's context (graceful
				// drain), so extensions use a fresh short context.
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				until := time.Now().Add(rc.Timeout + buffer)
				err := jobs.ExtendLease(ctx, rc.Job.ID, rc.RunID, until)
				cancel()

				if errors.Is(err, store.ErrLeaseLost) {
					logger.Warn("lease superseded; stopping heartbeat",
						"job_id", rc.Job.ID, "run_id", rc.RunID)
					return
				}
				if err != nil {
					logger.Warn("heartbeat extension failed",
						"job_id", rc.Job.ID, "run_id", rc.RunID, "error", err)
					metrics.BestEffortFailed(context.Background(), "heartbeat")
				}
			}
		}
	}()

	return h
}

// Stop cancels the heartbeat and waits for the ticker goroutine to
// exit. Idempotent.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
