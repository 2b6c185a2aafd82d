// Package control exposes the scheduler's remote-control HTTP surface:
// poke, health, manual trigger, and job administration.
package control

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"autoplane/internal/schedule"
	"autoplane/internal/scheduler"
	"autoplane/internal/store"
	"autoplane/pkg/api"

	"github.com/google/uuid"
)

// Scheduler is the part of the wake-loop service the control API uses.
type Scheduler interface {
	Poke()
	Started() bool
	RunningJobs() int
	Trigger(ctx context.Context, jobID uuid.UUID, source store.TriggerSource) (uuid.UUID, error)
}

// Store combines the repositories the control API needs.
type Store interface {
	Ping(ctx context.Context) error
	store.JobStore
	store.RunStore
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	sched  Scheduler
	store  Store
	logger *slog.Logger
}

// NewHandlers creates a Handlers instance.
func NewHandlers(sched Scheduler, st Store, logger *slog.Logger) *Handlers {
	return &Handlers{sched: sched, store: st, logger: logger}
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJSON(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// Health reports wake-loop liveness. No auth: load balancers call it.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, api.HealthResponse{
		Started:     h.sched.Started(),
		RunningJobs: h.sched.RunningJobs(),
	})
}

// Ready checks whether the service can reach its database.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Poke nudges the wake-loop to re-check due jobs immediately.
// Always returns 202.
func (h *Handlers) Poke(w http.ResponseWriter, r *http.Request) {
	h.sched.Poke()
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "poked"})
}

// TriggerJob handles POST /trigger/{id}: single-job manual
// claim + execute + finish. 409 when the job is already leased.
func (h *Handlers) TriggerJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetJobByID(r.Context(), jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	runID, err := h.sched.Trigger(r.Context(), jobID, store.SourceManual)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotClaimed) {
			h.httpError(w, "Job is already running", http.StatusConflict)
			return
		}
		h.logger.Error("manual trigger failed", "job_id", jobID, "error", err)
		h.httpError(w, "Failed to trigger job", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusAccepted, api.TriggerJobResponse{RunID: runID.String()})
}

// CreateJob handles POST /jobs: registers a new automation job and
// computes its first next_run_at.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.SiteID == "" || req.Name == "" || req.ActionPrompt == "" {
		h.httpError(w, "site_id, name and action_prompt are required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	job := &store.AutomationJob{
		ID:             uuid.New(),
		SiteID:         req.SiteID,
		UserID:         req.UserID,
		OrgID:          req.OrgID,
		Name:           req.Name,
		Trigger:        store.TriggerType(req.TriggerType),
		CronSchedule:   req.CronSchedule,
		CronTimezone:   req.CronTimezone,
		RunAt:          req.RunAt,
		ActionPrompt:   req.ActionPrompt,
		ActionModel:    req.ActionModel,
		ActionThinking: req.ActionThinking,
		TimeoutSeconds: req.TimeoutSeconds,
		Skills:         req.Skills,
		ResponseTool:   req.ResponseTool,
		IsActive:       true,
		Status:         store.JobStatusIdle,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	switch job.Trigger {
	case store.TriggerCron, store.TriggerWebhook, store.TriggerOneTime:
	default:
		h.httpError(w, "Invalid trigger_type", http.StatusBadRequest)
		return
	}

	next, err := schedule.NextRun(job, now)
	if err != nil {
		h.httpError(w, "Invalid schedule: "+err.Error(), http.StatusBadRequest)
		return
	}
	job.NextRunAt = next

	if err := h.store.CreateJob(r.Context(), job); err != nil {
		h.logger.Error("create job failed", "error", err)
		h.httpError(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	h.sched.Poke()
	h.respondJSON(w, http.StatusOK, api.CreateJobResponse{
		JobID:     job.ID.String(),
		NextRunAt: job.NextRunAt,
	})
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.store.GetJobByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Internal database error", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, http.StatusOK, api.JobStatusResponse{
		ID:                  job.ID.String(),
		SiteID:              job.SiteID,
		Name:                job.Name,
		TriggerType:         string(job.Trigger),
		IsActive:            job.IsActive,
		Status:              string(job.Status),
		NextRunAt:           job.NextRunAt,
		LastRunAt:           job.LastRunAt,
		LastRunStatus:       job.LastRunStatus,
		LastRunError:        job.LastRunError,
		LastRunDurationMs:   job.LastRunDurationMs,
		ConsecutiveFailures: job.ConsecutiveFailures,
	})
}

// ListRuns handles GET /jobs/{id}/runs.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := h.store.ListRunsForJob(r.Context(), jobID, limit)
	if err != nil {
		h.httpError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	resp := make([]api.RunResponse, 0, len(runs))
	for _, run := range runs {
		finished := run.FinishedAt
		resp = append(resp, api.RunResponse{
			ID:          run.ID.String(),
			JobID:       run.JobID.String(),
			Source:      string(run.Source),
			Status:      string(run.Status),
			Error:       run.Error,
			Summary:     run.Summary,
			Attempt:     run.Attempt,
			StartedAt:   run.StartedAt,
			FinishedAt:  &finished,
			DurationMs:  run.DurationMs,
			MessagesURI: run.MessagesURI,
		})
	}
	h.respondJSON(w, http.StatusOK, resp)
}
