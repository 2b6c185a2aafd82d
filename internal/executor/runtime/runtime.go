// Package runtime provides the backends for isolated single-use agent
// execution: a raw OS process and a Docker container.
package runtime

import (
	"context"
	"io"
)

// Runtime starts one isolated agent run.
type Runtime interface {
	// Start begins execution and returns a handle.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting an isolated run.
type StartOptions struct {
	// Workspace is the resolved site directory the agent runs in.
	Workspace string

	// Args are passed to the agent binary / container command.
	Args []string

	// Env is merged into the process environment.
	Env map[string]string

	// Image selects the container image (docker runtime only).
	Image string
}

// ExitResult describes how the run terminated.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents one running isolated execution.
type Handle interface {
	// Events returns the newline-delimited JSON event stream
	// (the process's stdout / container logs).
	Events(ctx context.Context) (io.ReadCloser, error)

	// Wait blocks until the run completes.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop forcefully terminates the run.
	Stop(ctx context.Context) error
}
