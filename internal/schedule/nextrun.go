// Package schedule computes when a job should run next.
package schedule

import (
	"fmt"
	"time"

	"autoplane/internal/store"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// NextRun returns the next time the job should run after the given
// instant, or nil when the job has no future occurrence (webhook jobs,
// or a one-time job whose run_at has passed).
func NextRun(job *store.AutomationJob, after time.Time) (*time.Time, error) {
	switch job.Trigger {
	case store.TriggerCron:
		return nextCron(job.CronSchedule, job.CronTimezone, after)

	case store.TriggerOneTime:
		if job.RunAt != nil && job.RunAt.After(after) {
			t := *job.RunAt
			return &t, nil
		}
		return nil, nil

	case store.TriggerWebhook:
		// Webhook jobs only run when poked externally.
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown trigger type %q", job.Trigger)
	}
}

func nextCron(spec, timezone string, after time.Time) (*time.Time, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", spec, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid cron timezone %q: %w", timezone, err)
		}
	}

	next := sched.Next(after.In(loc))
	if next.IsZero() {
		return nil, nil
	}
	return &next, nil
}
