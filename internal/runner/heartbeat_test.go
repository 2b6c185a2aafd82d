package runner

import (
	"testing"
	"time"

	"autoplane/internal/store"
)

func TestHeartbeat_ExtendsLease(t *testing.T) {
	jobs := &fakeJobStore{}
	rc := runContextFor(cronJob())

	h := StartHeartbeat(jobs, rc, 10*time.Millisecond, time.Minute, nil, discardLogger())
	time.Sleep(60 * time.Millisecond)
	h.Stop()

	if jobs.extensions() == 0 {
		t.Error("expected at least one lease extension")
	}
}

func TestHeartbeat_StopsOnLeaseLost(t *testing.T) {
	jobs := &fakeJobStore{extendErr: store.ErrLeaseLost}
	rc := runContextFor(cronJob())

	StartHeartbeat(jobs, rc, 10*time.Millisecond, time.Minute, nil, discardLogger())
	time.Sleep(100 * time.Millisecond)
	calls := jobs.extensions()

	// The goroutine must have exited after the first ErrLeaseLost, so
	// the call count stays frozen.
	time.Sleep(50 * time.Millisecond)
	if jobs.extensions() != calls {
		t.Errorf("heartbeat kept ticking after lease loss: %d then %d", calls, jobs.extensions())
	}
	if calls != 1 {
		t.Errorf("expected exactly one extension attempt, got %d", calls)
	}

	// Stop after self-termination is still safe.
	rc.StopHeartbeat()
}

func TestHeartbeat_StopIdempotent(t *testing.T) {
	jobs := &fakeJobStore{}
	rc := runContextFor(cronJob())

	h := StartHeartbeat(jobs, rc, time.Hour, time.Minute, nil, discardLogger())
	h.Stop()
	h.Stop()
	rc.StopHeartbeat()
}
