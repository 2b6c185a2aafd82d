package schedule

import (
	"testing"
	"time"

	"autoplane/internal/store"
)

func TestNextRun_Cron(t *testing.T) {
	job := &store.AutomationJob{
		Trigger:      store.TriggerCron,
		CronSchedule: "0 9 * * *",
	}

	after := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	next, err := NextRun(job, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next occurrence")
	}

	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextRun_CronTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Istanbul")
	if err != nil {
		t.Skipf("timezone db unavailable: %v", err)
	}

	job := &store.AutomationJob{
		Trigger:      store.TriggerCron,
		CronSchedule: "0 9 * * *",
		CronTimezone: "Europe/Istanbul",
	}

	after := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	next, err := NextRun(job, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil {
		t.Fatal("expected a next occurrence")
	}

	want := time.Date(2026, 3, 10, 9, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextRun_CronInvalid(t *testing.T) {
	job := &store.AutomationJob{
		Trigger:      store.TriggerCron,
		CronSchedule: "not a schedule",
	}

	if _, err := NextRun(job, time.Now()); err == nil {
		t.Error("expected error for invalid cron schedule")
	}
}

func TestNextRun_CronInvalidTimezone(t *testing.T) {
	job := &store.AutomationJob{
		Trigger:      store.TriggerCron,
		CronSchedule: "0 9 * * *",
		CronTimezone: "Mars/Olympus_Mons",
	}

	if _, err := NextRun(job, time.Now()); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestNextRun_OneTimeFuture(t *testing.T) {
	runAt := time.Now().Add(time.Hour).UTC()
	job := &store.AutomationJob{
		Trigger: store.TriggerOneTime,
		RunAt:   &runAt,
	}

	next, err := NextRun(job, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next == nil || !next.Equal(runAt) {
		t.Errorf("expected %v, got %v", runAt, next)
	}
}

func TestNextRun_OneTimePast(t *testing.T) {
	runAt := time.Now().Add(-time.Hour).UTC()
	job := &store.AutomationJob{
		Trigger: store.TriggerOneTime,
		RunAt:   &runAt,
	}

	next, err := NextRun(job, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != nil {
		t.Errorf("expected nil for past one-time job, got %v", next)
	}
}

func TestNextRun_Webhook(t *testing.T) {
	job := &store.AutomationJob{Trigger: store.TriggerWebhook}

	next, err := NextRun(job, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != nil {
		t.Errorf("webhook jobs must not self-schedule, got %v", next)
	}
}

func TestNextRun_UnknownTrigger(t *testing.T) {
	job := &store.AutomationJob{Trigger: store.TriggerType("carrier_pigeon")}

	if _, err := NextRun(job, time.Now()); err == nil {
		t.Error("expected error for unknown trigger type")
	}
}
