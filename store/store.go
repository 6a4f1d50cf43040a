package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"policylens/logger"
	"policylens/queue"
	"policylens/types"
)

// ErrMalformedIdentity rejects upserts whose canonical identity cannot key a
// record. Fatal for that record only; the batch continues.
var ErrMalformedIdentity = errors.New("malformed canonical identity")

// ErrConflict surfaces a lost concurrent-version race after retries were
// exhausted. Callers treat it like a record-scoped failure.
var ErrConflict = errors.New("store conflict: concurrent upsert for identity")

const conflictRetries = 3

// UpsertResult reports what one upsert did. Created is false for the
// idempotent no-op path (same identity, same hash).
type UpsertResult struct {
	Record  types.StoredRecord
	Version types.RecordVersion
	Created bool
}

// Store owns the StoredRecord lifecycle: creation, versioning, and the
// current-version pointer. All mutation goes through Upsert's transactional
// contract.
type Store struct {
	db        *gorm.DB
	log       *logger.Logger
	publisher queue.Publisher

	// Serializes upserts per identity within this process. Cross-process
	// races are caught by the unique constraints and retried.
	locks keyedMutex
}

// NewPostgres connects to Postgres, migrates the schema, and returns a
// ready Store. Connection failure here is fatal to the process by contract.
func NewPostgres(dsn string, publisher queue.Publisher, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	s := New(db, publisher, log)
	if err := s.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

// New wraps an existing gorm handle. Tests use this with the sqlite driver.
func New(db *gorm.DB, publisher queue.Publisher, log *logger.Logger) *Store {
	return &Store{
		db:        db,
		log:       log.With("component", "store"),
		publisher: publisher,
	}
}

func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&types.StoredRecord{},
		&types.RecordVersion{},
		&types.ExtractedEntity{},
		&types.QuarantineItem{},
		&types.CrawlRun{},
	)
}

// DB exposes the underlying handle for read-only query helpers.
func (s *Store) DB() *gorm.DB { return s.db }

// Upsert commits one item in a single transaction. Absent identity: insert
// version 1. Present with unchanged hash: no-op returning the existing
// version (safe to call twice for the same fetch). Present with changed
// hash: insert the next version and repoint CurrentVersion atomically. A
// lost race re-reads the winner and either no-ops or retries against it.
func (s *Store) Upsert(ctx context.Context, item types.Item) (UpsertResult, error) {
	identity := strings.TrimSpace(item.CanonicalURL)
	if identity == "" || item.ContentHash == "" {
		return UpsertResult{}, fmt.Errorf("%w: url=%q", ErrMalformedIdentity, item.CanonicalURL)
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	var (
		result UpsertResult
		err    error
	)
	for attempt := 0; attempt < conflictRetries; attempt++ {
		result, err = s.tryUpsert(ctx, identity, item)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return UpsertResult{}, err
		}
		// Another writer committed first; observe its version on retry.
		s.log.Warn("upsert lost version race, retrying against winner",
			"identity", identity, "attempt", attempt+1)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return UpsertResult{}, fmt.Errorf("%w (%s)", ErrConflict, identity)
		}
		return UpsertResult{}, err
	}

	if result.Created {
		s.enqueueExtraction(ctx, result)
	}
	return result, nil
}

func (s *Store) tryUpsert(ctx context.Context, identity string, item types.Item) (UpsertResult, error) {
	var result UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record types.StoredRecord
		err := tx.Where("canonical_url = ?", identity).First(&record).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return s.insertFirstVersion(tx, identity, item, &result)
		case err != nil:
			return err
		default:
			return s.insertNextVersion(tx, &record, item, &result)
		}
	})
	return result, err
}

func (s *Store) insertFirstVersion(tx *gorm.DB, identity string, item types.Item, result *UpsertResult) error {
	record := types.StoredRecord{
		CanonicalURL:   identity,
		SourceName:     item.SourceName,
		Country:        item.Country,
		CurrentVersion: 1,
	}
	if err := tx.Create(&record).Error; err != nil {
		return err
	}
	version := newVersionRow(record.ID, 1, item)
	if err := tx.Create(&version).Error; err != nil {
		return err
	}
	*result = UpsertResult{Record: record, Version: version, Created: true}
	return nil
}

func (s *Store) insertNextVersion(tx *gorm.DB, record *types.StoredRecord, item types.Item, result *UpsertResult) error {
	var current types.RecordVersion
	err := tx.Where("record_id = ? AND version = ?", record.ID, record.CurrentVersion).
		First(&current).Error
	if err != nil {
		return fmt.Errorf("load current version for %s: %w", record.CanonicalURL, err)
	}

	if current.ContentHash == item.ContentHash {
		*result = UpsertResult{Record: *record, Version: current, Created: false}
		return nil
	}

	next := newVersionRow(record.ID, record.CurrentVersion+1, item)
	if err := tx.Create(&next).Error; err != nil {
		return err
	}
	if err := tx.Model(record).Update("current_version", next.Version).Error; err != nil {
		return err
	}
	record.CurrentVersion = next.Version
	*result = UpsertResult{Record: *record, Version: next, Created: true}
	return nil
}

func newVersionRow(recordID uuid.UUID, version int, item types.Item) types.RecordVersion {
	return types.RecordVersion{
		RecordID:         recordID,
		Version:          version,
		ContentHash:      item.ContentHash,
		Title:            item.Title,
		Body:             item.BodyText,
		Language:         item.Language,
		Author:           item.Author,
		Summary:          item.Summary,
		WordCount:        item.WordCount,
		PublishedAt:      item.PublishedAt,
		FetchedAt:        item.FetchedAt,
		ExtractionStatus: types.ExtractionPending,
	}
}

// enqueueExtraction publishes the new version for extraction. Publish
// failure does not fail the upsert: the version row stays pending and
// RequeuePending picks it up later.
func (s *Store) enqueueExtraction(ctx context.Context, result UpsertResult) {
	if s.publisher == nil {
		return
	}
	job := queue.Job{RecordID: result.Record.ID, Version: result.Version.Version}
	if err := s.publisher.Publish(ctx, job); err != nil {
		s.log.Error("failed to enqueue extraction job; version stays pending",
			"record_id", result.Record.ID, "version", result.Version.Version, "error", err)
	}
}

// keyedMutex hands out one mutex per key, so distinct identities never
// contend while upserts for the same identity serialize.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
