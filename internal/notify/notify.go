// Package notify alerts job owners when a job is permanently
// disabled. Delivery is best-effort: the finisher logs and counts a
// failure here but never lets it change the run outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"autoplane/internal/store"
)

// Notifier is the external alerting collaborator.
type Notifier interface {
	// JobDisabled reports that the job hit its retry limit and was
	// disabled. The returned error is informational only.
	JobDisabled(ctx context.Context, job *store.AutomationJob, runErr string) error
}

// Webhook posts disablement alerts to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type disabledPayload struct {
	JobID               string    `json:"job_id"`
	SiteID              string    `json:"site_id"`
	UserID              string    `json:"user_id,omitempty"`
	Name                string    `json:"name"`
	Error               string    `json:"error"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	DisabledAt          time.Time `json:"disabled_at"`
}

func (w *Webhook) JobDisabled(ctx context.Context, job *store.AutomationJob, runErr string) error {
	body, err := json.Marshal(disabledPayload{
		JobID:               job.ID.String(),
		SiteID:              job.SiteID,
		UserID:              job.UserID,
		Name:                job.Name,
		Error:               runErr,
		ConsecutiveFailures: job.ConsecutiveFailures + 1,
		DisabledAt:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Nop is used when no webhook is configured.
type Nop struct{}

func (Nop) JobDisabled(context.Context, *store.AutomationJob, string) error { return nil }
