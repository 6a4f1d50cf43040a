package orchestrator

import (
	"context"
	"time"

	"policylens/logger"
)

// Trigger decides when the next batch fires. Implementations must be pure
// functions of the supplied time so schedules are testable with a fake
// clock.
type Trigger interface {
	NextFire(now time.Time) time.Time
}

// IntervalTrigger fires at a fixed cadence.
type IntervalTrigger struct {
	Interval time.Duration
}

func (t IntervalTrigger) NextFire(now time.Time) time.Time {
	return now.Add(t.Interval)
}

// DailyTrigger fires once a day at the configured UTC hour and minute.
type DailyTrigger struct {
	Hour   int
	Minute int
}

func (t DailyTrigger) NextFire(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler repeatedly waits for the trigger and runs the supplied job.
// Job-level failures log and wait for the next fire; only context
// cancellation stops the loop.
type Scheduler struct {
	Trigger Trigger
	Job     func(ctx context.Context) error
	JobName string
	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	Log *logger.Logger
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.Trigger.NextFire(s.now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		s.Log.Info("next scheduled run", "job", s.JobName, "at", next, "in", wait)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := s.Job(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Log.Error("scheduled run failed", "job", s.JobName, "error", err)
		}
	}
}
