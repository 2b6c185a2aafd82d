package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// PoolStrategy delegates execution to the pooled agent backend over
// HTTP. The backend keeps warm agent processes; the response body is a
// newline-delimited JSON event stream that ends with a result event.
type PoolStrategy struct {
	baseURL string
	secret  string
	client  *http.Client
	logger  *slog.Logger
}

// poolRunRequest is the JSON body sent to the pool backend.
type poolRunRequest struct {
	RunID     string   `json:"run_id"`
	SiteID    string   `json:"site_id"`
	Workspace string   `json:"workspace"`
	Prompt    string   `json:"prompt"`
	Model     string   `json:"model,omitempty"`
	Thinking  bool     `json:"thinking,omitempty"`
	Skills    []string `json:"skills,omitempty"`
}

// NewPoolStrategy creates the primary pooled strategy.
func NewPoolStrategy(baseURL, secret string, logger *slog.Logger) *PoolStrategy {
	if len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &PoolStrategy{
		baseURL: baseURL,
		secret:  secret,
		// No client-level timeout: the run is bounded per-request by
		// the context deadline, and streams can legitimately run for
		// minutes.
		client: &http.Client{},
		logger: logger,
	}
}

func (s *PoolStrategy) Name() string { return "pool" }

// Execute runs one attempt against the pool backend, bounded by the
// request timeout via context cancellation.
func (s *PoolStrategy) Execute(ctx context.Context, req Request) (*AttemptResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	body, err := json.Marshal(poolRunRequest{
		RunID:     req.RunID.String(),
		SiteID:    req.SiteID,
		Workspace: req.Workspace,
		Prompt:    req.Prompt,
		Model:     req.Model,
		Thinking:  req.Thinking,
		Skills:    req.Skills,
	})
	if err != nil {
		return nil, err
	}

	url := s.baseURL + "/v1/runs"
	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if s.secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.secret)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pool execution timed out after %v", req.Timeout)
		}
		return nil, fmt.Errorf("pool request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("pool backend returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	res, err := collectEvents(resp.Body)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pool execution timed out after %v", req.Timeout)
		}
		return nil, err
	}

	s.logger.Debug("pool attempt finished",
		"run_id", req.RunID,
		"events", len(res.Events),
		"cost_usd", res.Usage.CostUSD)
	return res, nil
}
