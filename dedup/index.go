package dedup

import (
	"context"
	"sync"
)

// Status is the outcome of a dedup check for one canonical identity.
type Status string

const (
	// StatusNew: identity never seen; caller runs the full pipeline.
	StatusNew Status = "new"
	// StatusUnchanged: identity seen with the same hash; caller skips the
	// pipeline and the store entirely.
	StatusUnchanged Status = "unchanged"
	// StatusUpdated: identity seen with a different hash; caller runs the
	// pipeline and the store versions the record.
	StatusUpdated Status = "updated"
)

// CheckResult carries the outcome plus the hash the index held before the
// check, so a caller whose downstream commit fails can restore it.
type CheckResult struct {
	Status    Status
	PriorHash string
}

// Index is the persistent content-addressed dedup gate. Check both reads and
// marks in one atomic step: of N concurrent checks for the same identity and
// hash, exactly one observes New (or Updated).
type Index interface {
	Check(ctx context.Context, identity, hash string) (CheckResult, error)
	// Restore puts the index back to priorHash for identity (empty prior
	// removes the entry). Used when a downstream commit fails after a check
	// already marked the new hash.
	Restore(ctx context.Context, identity, priorHash string) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// MemoryIndex is a process-local Index for tests and single-node runs
// without Redis. It loses state on restart.
type MemoryIndex struct {
	mu     sync.Mutex
	hashes map[string]string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{hashes: make(map[string]string)}
}

func (m *MemoryIndex) Check(_ context.Context, identity, hash string) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prior, seen := m.hashes[identity]
	switch {
	case !seen:
		m.hashes[identity] = hash
		return CheckResult{Status: StatusNew}, nil
	case prior == hash:
		return CheckResult{Status: StatusUnchanged, PriorHash: prior}, nil
	default:
		m.hashes[identity] = hash
		return CheckResult{Status: StatusUpdated, PriorHash: prior}, nil
	}
}

func (m *MemoryIndex) Restore(_ context.Context, identity, priorHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if priorHash == "" {
		delete(m.hashes, identity)
	} else {
		m.hashes[identity] = priorHash
	}
	return nil
}

func (m *MemoryIndex) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.hashes)), nil
}

func (m *MemoryIndex) Close() error { return nil }
