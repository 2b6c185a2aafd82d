package postgres

import (
	"context"
	"testing"
	"time"

	"autoplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var runColumnList = []string{
	"id", "job_id", "site_id", "source", "status", "error", "summary",
	"messages_uri", "attempt", "started_at", "finished_at", "duration_ms", "created_at",
}

func TestInsertRun(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	run := &store.RunRecord{
		ID:         uuid.New(),
		JobID:      uuid.New(),
		SiteID:     "site-a",
		Source:     store.SourceScheduler,
		Status:     store.RunStatusSuccess,
		Attempt:    1,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		DurationMs: 60000,
		CreatedAt:  now,
	}

	mock.ExpectExec(`INSERT INTO job_runs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.InsertRun(context.Background(), run); err != nil {
		t.Fatalf("InsertRun failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListRunsForJob(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	now := time.Now().UTC()
	errMsg := "agent exited with code 1"

	rows := sqlmock.NewRows(runColumnList).
		AddRow(uuid.New(), jobID, "site-a", "scheduler", "failure", errMsg, nil,
			nil, 2, now.Add(-time.Minute), now, 60000, now).
		AddRow(uuid.New(), jobID, "site-a", "manual", "success", nil, "all done",
			"file:///var/lib/autoplane/messages/x.json", 1, now.Add(-time.Hour), now.Add(-59*time.Minute), 60000, now)

	mock.ExpectQuery(`SELECT (.+) FROM job_runs`).
		WithArgs(jobID, 10).
		WillReturnRows(rows)

	runs, err := s.ListRunsForJob(context.Background(), jobID, 10)
	if err != nil {
		t.Fatalf("ListRunsForJob failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Error == nil || *runs[0].Error != errMsg {
		t.Errorf("error not scanned: %v", runs[0].Error)
	}
	if runs[1].MessagesURI == nil {
		t.Error("messages uri not scanned")
	}
	if runs[1].Source != store.SourceManual {
		t.Errorf("unexpected source: %s", runs[1].Source)
	}
}

func TestListRunsForJob_DefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	jobID := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM job_runs`).
		WithArgs(jobID, 20).
		WillReturnRows(sqlmock.NewRows(runColumnList))

	runs, err := s.ListRunsForJob(context.Background(), jobID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty result, got %d", len(runs))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
