package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Publish after Close.
var ErrQueueClosed = errors.New("queue closed")

// Job references one stored record version awaiting extraction. Delivery is
// at-least-once; consumers must treat duplicates as no-ops.
type Job struct {
	RecordID uuid.UUID `json:"record_id"`
	Version  int       `json:"version"`
}

// Publisher enqueues extraction jobs. The durable store publishes one job
// per non-no-op upsert.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
	Close() error
}

// Handler processes one delivered job. A returned error leaves the job
// unacknowledged so the queue redelivers it.
type Handler func(ctx context.Context, job Job) error

// Consumer feeds delivered jobs to a handler until the context ends.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
	Close() error
}

// MemoryQueue is an in-process Publisher+Consumer backed by a buffered
// channel. It covers tests and single-node runs without a broker, at the
// cost of durability across restarts.
type MemoryQueue struct {
	jobs chan Job

	mu     sync.RWMutex
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{jobs: make(chan Job, size)}
}

func (q *MemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return nil
			}
			if err := handler(ctx, job); err != nil {
				// Redeliver on failure, matching at-least-once semantics. A
				// queue closed mid-redelivery just drops the job.
				if pubErr := q.Publish(ctx, job); pubErr != nil && !errors.Is(pubErr, ErrQueueClosed) {
					return pubErr
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
