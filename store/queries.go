package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"policylens/queue"
	"policylens/types"
)

// CurrentRecords lists records with their current version row, newest first.
func (s *Store) CurrentRecords(ctx context.Context, limit int) ([]types.StoredRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []types.StoredRecord
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// GetRecord looks up one record with all of its versions by canonical URL.
func (s *Store) GetRecord(ctx context.Context, canonicalURL string) (*types.StoredRecord, error) {
	var record types.StoredRecord
	err := s.db.WithContext(ctx).
		Preload("Versions").
		Where("canonical_url = ?", canonicalURL).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetRecordByID loads one record row by primary key.
func (s *Store) GetRecordByID(ctx context.Context, id uuid.UUID) (*types.StoredRecord, error) {
	var record types.StoredRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// GetVersion loads one version row by record and version number.
func (s *Store) GetVersion(ctx context.Context, recordID uuid.UUID, version int) (*types.RecordVersion, error) {
	var row types.RecordVersion
	err := s.db.WithContext(ctx).
		Where("record_id = ? AND version = ?", recordID, version).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// EntitiesForVersion lists the extracted entities of one record version.
func (s *Store) EntitiesForVersion(ctx context.Context, versionID uuid.UUID) ([]types.ExtractedEntity, error) {
	var entities []types.ExtractedEntity
	err := s.db.WithContext(ctx).
		Where("record_version_id = ?", versionID).
		Order("kind, name").
		Find(&entities).Error
	return entities, err
}

// ReplaceEntities supersedes the entities of one version in a single
// transaction: prior rows are deleted, the new set inserted, and the version
// marked extracted. Running it twice for the same input leaves one set.
func (s *Store) ReplaceEntities(ctx context.Context, versionID uuid.UUID, entities []types.ExtractedEntity) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_version_id = ?", versionID).
			Delete(&types.ExtractedEntity{}).Error; err != nil {
			return fmt.Errorf("supersede entities: %w", err)
		}
		for i := range entities {
			entities[i].RecordVersionID = versionID
		}
		if len(entities) > 0 {
			if err := tx.Create(&entities).Error; err != nil {
				return fmt.Errorf("insert entities: %w", err)
			}
		}
		return tx.Model(&types.RecordVersion{}).
			Where("id = ?", versionID).
			Update("extraction_status", types.ExtractionDone).Error
	})
}

// MarkExtractionFailed records a terminal extraction failure so it stays
// visible and queryable rather than silently dropped.
func (s *Store) MarkExtractionFailed(ctx context.Context, versionID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&types.RecordVersion{}).
		Where("id = ?", versionID).
		Update("extraction_status", types.ExtractionFailed).Error
}

// FailedExtractions lists versions whose extraction terminally failed.
func (s *Store) FailedExtractions(ctx context.Context, limit int) ([]types.RecordVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []types.RecordVersion
	err := s.db.WithContext(ctx).
		Where("extraction_status = ?", types.ExtractionFailed).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// RequeuePending republishes extraction jobs for versions that have sat in
// pending longer than age. Covers publish failures after commit and external
// re-extraction triggers (a model upgrade resets statuses, then calls this).
func (s *Store) RequeuePending(ctx context.Context, age time.Duration) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-age)

	var rows []types.RecordVersion
	err := s.db.WithContext(ctx).
		Where("extraction_status = ? AND created_at < ?", types.ExtractionPending, cutoff).
		Find(&rows).Error
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, row := range rows {
		job := queue.Job{RecordID: row.RecordID, Version: row.Version}
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.log.Error("requeue failed", "record_id", row.RecordID, "version", row.Version, "error", err)
			continue
		}
		requeued++
	}
	return requeued, nil
}

// ResetExtraction flips a record's versions back to pending and republishes
// them, so a new model pass supersedes the stored entities. Returns
// gorm.ErrRecordNotFound when the record has no versions.
func (s *Store) ResetExtraction(ctx context.Context, recordID uuid.UUID) error {
	var rows []types.RecordVersion
	err := s.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Find(&rows).Error
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return gorm.ErrRecordNotFound
	}

	err = s.db.WithContext(ctx).Model(&types.RecordVersion{}).
		Where("record_id = ?", recordID).
		Update("extraction_status", types.ExtractionPending).Error
	if err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}
	for _, row := range rows {
		job := queue.Job{RecordID: row.RecordID, Version: row.Version}
		if err := s.publisher.Publish(ctx, job); err != nil {
			s.log.Error("reset republish failed, version stays pending",
				"record_id", row.RecordID, "version", row.Version, "error", err)
		}
	}
	return nil
}

// QuarantineList returns recent quarantine rows for inspection.
func (s *Store) QuarantineList(ctx context.Context, limit int) ([]types.QuarantineItem, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []types.QuarantineItem
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
