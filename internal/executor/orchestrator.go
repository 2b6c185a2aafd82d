package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoBackend is returned by a primary-only orchestrator constructed
// without a primary strategy. It is a configuration error: execution
// fails fast rather than silently degrading.
var ErrNoBackend = errors.New("no execution backend configured")

// Orchestrator runs an attempt through the primary strategy and
// escalates failures. Two policies exist:
//
//   - retry-then-fallback: one inline retry after a fixed delay when
//     the failure classifies as transient, then the fallback strategy.
//   - primary-only: no fallback; a missing primary is a hard error.
type Orchestrator struct {
	primary    Strategy
	fallback   Strategy // nil disables fallback (primary-only)
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates an orchestrator. Passing a nil fallback selects the
// primary-only policy.
func New(primary, fallback Strategy, retryDelay time.Duration, logger *slog.Logger) *Orchestrator {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Orchestrator{
		primary:    primary,
		fallback:   fallback,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// Run executes the request. Only the attempt that ultimately succeeds
// has its result returned; partial output from failed attempts is
// discarded, never merged.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*AttemptResult, error) {
	if o.primary == nil {
		if o.fallback == nil {
			return nil, ErrNoBackend
		}
		// Degraded deployment: only the fallback strategy exists.
		return o.attempt(ctx, o.fallback, req)
	}

	res, err := o.attempt(ctx, o.primary, req)
	if err == nil {
		return res, nil
	}

	cls := Classify(err)
	o.logger.Warn("primary attempt failed",
		"run_id", req.RunID, "strategy", o.primary.Name(),
		"kind", string(cls.Kind), "transient", cls.Transient, "error", err)

	if cls.Transient {
		select {
		case <-time.After(o.retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		res, retryErr := o.attempt(ctx, o.primary, req)
		if retryErr == nil {
			return res, nil
		}
		o.logger.Warn("primary retry failed",
			"run_id", req.RunID, "error", retryErr)
		err = retryErr
	}

	if o.fallback == nil {
		return nil, err
	}

	o.logger.Info("falling back to isolated execution",
		"run_id", req.RunID, "strategy", o.fallback.Name())
	return o.attempt(ctx, o.fallback, req)
}

// attempt runs one strategy and enforces the tool-response contract:
// when the payload names a required tool, an attempt whose event
// stream never invoked that tool is a failure even though the backend
// call succeeded.
func (o *Orchestrator) attempt(ctx context.Context, s Strategy, req Request) (*AttemptResult, error) {
	res, err := s.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.ResponseTool != "" {
		text, invoked := res.ToolResult(req.ResponseTool)
		if !invoked {
			return nil, fmt.Errorf("required tool %q was not invoked", req.ResponseTool)
		}
		res.ToolResponse = text
	}

	return res, nil
}
