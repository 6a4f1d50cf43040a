package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(8)
	job := Job{RecordID: uuid.New(), Version: 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := make(chan Job, 1)
	go q.Consume(ctx, func(_ context.Context, j Job) error {
		got <- j
		cancel()
		return nil
	})

	select {
	case j := <-got:
		if j.RecordID != job.RecordID || j.Version != job.Version {
			t.Errorf("delivered %+v, want %+v", j, job)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never delivered")
	}
}

func TestMemoryQueueRedeliversOnHandlerError(t *testing.T) {
	q := NewMemoryQueue(8)
	job := Job{RecordID: uuid.New(), Version: 2}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, job); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var attempts int32
	done := make(chan struct{})
	go q.Consume(ctx, func(_ context.Context, j Job) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		cancel()
		return nil
	})

	select {
	case <-done:
		if n := atomic.LoadInt32(&attempts); n != 3 {
			t.Errorf("attempts = %d, want 3", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job never redelivered to success")
	}
}

func TestMemoryQueueConsumeStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Consume(ctx, func(context.Context, Job) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMemoryQueueCloseIsIdempotent(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemoryQueuePublishAfterCloseErrors(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err := q.Publish(context.Background(), Job{RecordID: uuid.New(), Version: 1})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("err = %v, want ErrQueueClosed", err)
	}
}
