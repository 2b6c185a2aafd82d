package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autoplane/internal/executor/runtime"
)

// IsolatedStrategy spawns a single-use agent process (or container)
// for the payload and reads its stdout as a newline-delimited event
// stream. Cancellation terminates the process.
type IsolatedStrategy struct {
	rt     runtime.Runtime
	image  string
	logger *slog.Logger
}

// NewIsolatedStrategy creates the fallback strategy over the given
// runtime backend. image is only used by the docker backend.
func NewIsolatedStrategy(rt runtime.Runtime, image string, logger *slog.Logger) *IsolatedStrategy {
	return &IsolatedStrategy{rt: rt, image: image, logger: logger}
}

func (s *IsolatedStrategy) Name() string { return "isolated" }

// Execute runs one attempt in a fresh process, bounded by the request
// timeout.
func (s *IsolatedStrategy) Execute(ctx context.Context, req Request) (*AttemptResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	opts := runtime.StartOptions{
		Workspace: req.Workspace,
		Image:     s.image,
		Args:      buildAgentArgs(req),
		Env: map[string]string{
			"AUTOPLANE_RUN_ID":  req.RunID.String(),
			"AUTOPLANE_JOB_ID":  req.JobID.String(),
			"AUTOPLANE_SITE_ID": req.SiteID,
		},
	}

	handle, err := s.rt.Start(runCtx, opts)
	if err != nil {
		return nil, err
	}

	type readResult struct {
		res *AttemptResult
		err error
	}
	readCh := make(chan readResult, 1)

	go func() {
		events, err := handle.Events(runCtx)
		if err != nil {
			readCh <- readResult{err: fmt.Errorf("event stream unavailable: %w", err)}
			return
		}
		defer events.Close()
		res, err := collectEvents(events)
		readCh <- readResult{res: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		s.stop(handle, req)
		return nil, fmt.Errorf("isolated execution timed out after %v", req.Timeout)

	case r := <-readCh:
		if r.err != nil {
			s.stop(handle, req)
			if runCtx.Err() == context.DeadlineExceeded {
				return nil, fmt.Errorf("isolated execution timed out after %v", req.Timeout)
			}
			return nil, r.err
		}

		exit, err := handle.Wait(runCtx)
		if err != nil {
			return nil, fmt.Errorf("agent run failed: %w", err)
		}
		if exit.ExitCode != 0 {
			return nil, fmt.Errorf("agent exited with code %d", exit.ExitCode)
		}
		return r.res, nil
	}
}

func (s *IsolatedStrategy) stop(handle runtime.Handle, req Request) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handle.Stop(stopCtx); err != nil {
		s.logger.Warn("failed to stop isolated run", "run_id", req.RunID, "error", err)
	}
}

func buildAgentArgs(req Request) []string {
	args := []string{
		"--prompt", req.Prompt,
		"--output-format", "ndjson",
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.Thinking {
		args = append(args, "--thinking")
	}
	if len(req.Skills) > 0 {
		args = append(args, "--skills", strings.Join(req.Skills, ","))
	}
	return args
}
