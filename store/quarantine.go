package store

import (
	"context"
	"encoding/json"
	"fmt"

	"policylens/pipeline"
	"policylens/types"
)

// QuarantineSink persists pipeline rejections as append-only rows, separate
// from the record tables, with the full item payload for replay.
type QuarantineSink struct {
	store *Store
}

func NewQuarantineSink(s *Store) *QuarantineSink {
	return &QuarantineSink{store: s}
}

func (q *QuarantineSink) Quarantine(ctx context.Context, rejected pipeline.RejectedItem) error {
	payload, err := json.Marshal(rejected.Item)
	if err != nil {
		return fmt.Errorf("marshal quarantined item: %w", err)
	}
	row := types.QuarantineItem{
		CanonicalURL: rejected.Item.CanonicalURL,
		SourceName:   rejected.Item.SourceName,
		Stage:        rejected.Stage,
		Reason:       rejected.Reason,
		Payload:      payload,
		CreatedAt:    rejected.At,
	}
	return q.store.db.WithContext(ctx).Create(&row).Error
}
