package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ExecRuntime runs the agent as a raw OS process. One process per run,
// nothing shared.
type ExecRuntime struct {
	bin string
}

// NewExecRuntime creates a process-based runtime using the given agent
// binary.
func NewExecRuntime(bin string) *ExecRuntime {
	return &ExecRuntime{bin: bin}
}

// Start implements Runtime.Start using os/exec.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	cmd := exec.Command(e.bin, opts.Args...)
	cmd.Dir = opts.Workspace
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: 64 * 1024}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn failed: %w", err)
	}

	h := &execHandle{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		waitCh: make(chan ExitResult, 1),
	}

	// A single goroutine owns cmd.Wait; Handle.Wait can be called
	// with any context without racing it.
	go func() {
		err := cmd.Wait()
		res := ExitResult{ExitCode: 0}
		if err != nil {
			res.Error = err
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
			} else {
				res.ExitCode = -1
			}
		}
		h.waitCh <- res
	}()

	return h, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	waitCh chan ExitResult

	mu   sync.Mutex
	done *ExitResult
}

func (h *execHandle) Events(ctx context.Context) (io.ReadCloser, error) {
	return h.stdout, nil
}

func (h *execHandle) Wait(ctx context.Context) (ExitResult, error) {
	h.mu.Lock()
	if h.done != nil {
		res := *h.done
		h.mu.Unlock()
		return res, res.Error
	}
	h.mu.Unlock()

	select {
	case res := <-h.waitCh:
		h.mu.Lock()
		h.done = &res
		h.mu.Unlock()
		if res.Error != nil && h.stderr.Len() > 0 {
			res.Error = fmt.Errorf("%w: %s", res.Error, bytes.TrimSpace(h.stderr.Bytes()))
		}
		return res, res.Error
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *execHandle) Stop(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// limitedBuffer caps stderr capture so a chatty agent cannot grow the
// buffer without bound.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.buf.Len() >= l.max {
		return len(p), nil
	}
	if remaining := l.max - l.buf.Len(); len(p) > remaining {
		l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}
