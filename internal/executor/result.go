// Package executor runs a job's agent payload through pluggable
// execution strategies and decides how failures escalate.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Event is one entry of the newline-delimited event stream an agent
// run produces.
type Event struct {
	Type  string `json:"type"`
	Tool  string `json:"tool,omitempty"`
	Text  string `json:"text,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
}

// Event types emitted by the agent backends.
const (
	EventMessage    = "message"
	EventToolUse    = "tool_use"
	EventToolResult = "tool_result"
	EventResult     = "result"
	EventError      = "error"
)

// Usage holds token/cost metrics reported by the backend.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// AttemptResult is the uniform outcome of one execution attempt. Each
// attempt starts from a fresh result; a failed attempt never leaks
// state into a retry or fallback attempt.
type AttemptResult struct {
	Output       string
	ToolResponse string
	Events       []Event
	Usage        Usage
}

// ToolResult returns the text of the last tool_result event produced
// by the named tool, and whether that tool was invoked at all.
func (r *AttemptResult) ToolResult(name string) (string, bool) {
	text, found := "", false
	for _, ev := range r.Events {
		if ev.Type == EventToolResult && ev.Tool == name {
			text, found = ev.Text, true
		}
	}
	return text, found
}

// Request carries everything a strategy needs to run one attempt.
type Request struct {
	RunID        uuid.UUID
	JobID        uuid.UUID
	SiteID       string
	Workspace    string
	Prompt       string
	Model        string
	Thinking     bool
	Skills       []string
	Timeout      time.Duration
	ResponseTool string
}

// Strategy is one interchangeable way to run a job's payload.
type Strategy interface {
	// Name identifies the strategy in logs and run records.
	Name() string

	// Execute runs the payload to completion and returns the attempt
	// result, or an error on any failure including timeout.
	Execute(ctx context.Context, req Request) (*AttemptResult, error)
}

// collectEvents drains a newline-delimited JSON event stream into a
// fresh AttemptResult. Lines that do not parse are skipped rather than
// aborting the run; an explicit error event aborts it.
func collectEvents(r io.Reader) (*AttemptResult, error) {
	res := &AttemptResult{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		res.Events = append(res.Events, ev)

		switch ev.Type {
		case EventMessage:
			if res.Output != "" {
				res.Output += "\n"
			}
			res.Output += ev.Text
		case EventResult:
			if ev.Usage != nil {
				res.Usage = *ev.Usage
			}
		case EventError:
			return nil, fmt.Errorf("agent reported error: %s", ev.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("event stream read failed: %w", err)
	}

	return res, nil
}
