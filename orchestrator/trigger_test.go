package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"policylens/logger"
)

func TestIntervalTrigger(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	trigger := IntervalTrigger{Interval: 6 * time.Hour}
	next := trigger.NextFire(now)
	if want := now.Add(6 * time.Hour); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestDailyTrigger(t *testing.T) {
	trigger := DailyTrigger{Hour: 5, Minute: 30}

	t.Run("later today", func(t *testing.T) {
		now := time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC)
		next := trigger.NextFire(now)
		want := time.Date(2026, 8, 20, 5, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("already past, rolls to tomorrow", func(t *testing.T) {
		now := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
		next := trigger.NextFire(now)
		want := time.Date(2026, 8, 21, 5, 30, 0, 0, time.UTC)
		if !next.Equal(want) {
			t.Errorf("next = %v, want %v", next, want)
		}
	})

	t.Run("exactly at fire time rolls forward", func(t *testing.T) {
		now := time.Date(2026, 8, 20, 5, 30, 0, 0, time.UTC)
		next := trigger.NextFire(now)
		if !next.After(now) {
			t.Errorf("next = %v, must be strictly after now", next)
		}
	})
}

func TestSchedulerRunsJobAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	s := &Scheduler{
		Trigger: IntervalTrigger{Interval: time.Millisecond},
		JobName: "test",
		Log:     logger.NewNop(),
		Job: func(context.Context) error {
			runs++
			if runs >= 2 {
				cancel()
			}
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if runs < 2 {
		t.Errorf("runs = %d, want at least 2", runs)
	}
}

func TestSchedulerSurvivesJobFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := 0
	s := &Scheduler{
		Trigger: IntervalTrigger{Interval: time.Millisecond},
		JobName: "flaky",
		Log:     logger.NewNop(),
		Job: func(context.Context) error {
			runs++
			if runs >= 3 {
				cancel()
			}
			return errors.New("batch failed")
		},
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if runs < 3 {
		t.Errorf("runs = %d, want job retried across failures", runs)
	}
}
