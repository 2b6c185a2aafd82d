package postgres

import (
	"context"
	"testing"
	"time"

	"autoplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestCreateJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	job := &store.AutomationJob{
		ID:           uuid.New(),
		SiteID:       "site-a",
		Name:         "daily-digest",
		Trigger:      store.TriggerCron,
		CronSchedule: "0 9 * * *",
		ActionPrompt: "summarize the inbox",
		Skills:       []string{"mail"},
		IsActive:     true,
		Status:       store.JobStatusIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectExec(`INSERT INTO automation_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetJobByID(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID, runID := uuid.New(), uuid.New()
	rows := sqlmock.NewRows(jobColumnList)
	claimedJobRow(rows, jobID, runID)

	mock.ExpectQuery(`SELECT (.+) FROM automation_jobs WHERE id = \$1`).
		WithArgs(jobID).
		WillReturnRows(rows)

	job, err := s.GetJobByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJobByID failed: %v", err)
	}
	if job.ID != jobID {
		t.Errorf("got job %s, want %s", job.ID, jobID)
	}
	if job.Trigger != store.TriggerCron {
		t.Errorf("unexpected trigger: %s", job.Trigger)
	}
	if !job.Claimed() {
		t.Error("expected job to report claimed")
	}
}

func TestNextDueTime(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	due := time.Now().Add(5 * time.Minute).UTC()
	mock.ExpectQuery(`SELECT MIN\(next_run_at\)`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(due))

	next, err := s.NextDueTime(context.Background())
	if err != nil {
		t.Fatalf("NextDueTime failed: %v", err)
	}
	if next == nil || !next.Equal(due) {
		t.Errorf("got %v, want %v", next, due)
	}
}

func TestNextDueTime_NothingScheduled(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT MIN\(next_run_at\)`).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	next, err := s.NextDueTime(context.Background())
	if err != nil {
		t.Fatalf("NextDueTime failed: %v", err)
	}
	if next != nil {
		t.Errorf("expected nil when nothing is scheduled, got %v", next)
	}
}
