package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autoplane/pkg/api"
)

// SchedulerClient handles API calls to the scheduler control API.
type SchedulerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewSchedulerClient creates a new client with the given base URL and token.
func NewSchedulerClient(baseURL, token string) *SchedulerClient {
	return &SchedulerClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *SchedulerClient) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateJob sends POST /jobs to register a new automation job.
func (c *SchedulerClient) CreateJob(req api.CreateJobRequest) (*api.CreateJobResponse, error) {
	var result api.CreateJobResponse
	if err := c.do(http.MethodPost, "/jobs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TriggerJob sends POST /trigger/{id} to run a job immediately.
func (c *SchedulerClient) TriggerJob(jobID string) (*api.TriggerJobResponse, error) {
	var result api.TriggerJobResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/trigger/%s", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id} to retrieve a job's lifecycle state.
func (c *SchedulerClient) GetJob(jobID string) (*api.JobStatusResponse, error) {
	var result api.JobStatusResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/jobs/%s", jobID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns sends GET /jobs/{id}/runs to retrieve recent run records.
func (c *SchedulerClient) ListRuns(jobID string, limit int) ([]api.RunResponse, error) {
	var result []api.RunResponse
	path := fmt.Sprintf("/jobs/%s/runs?limit=%d", jobID, limit)
	if err := c.do(http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Poke sends POST /poke to nudge the wake-loop.
func (c *SchedulerClient) Poke() error {
	return c.do(http.MethodPost, "/poke", nil, nil)
}
