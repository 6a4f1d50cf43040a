package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"policylens/types"
)

// StartRun opens the audit row for one batch.
func (s *Store) StartRun(ctx context.Context, jobName string) (uuid.UUID, error) {
	run := types.CrawlRun{
		JobName:   jobName,
		StartedAt: time.Now().UTC(),
		Status:    types.RunRunning,
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return uuid.Nil, err
	}
	return run.ID, nil
}

// RunTotals is what FinishRun stamps onto the audit row.
type RunTotals struct {
	Fetched     int
	Saved       int
	Unchanged   int
	Quarantined int
	FetchFails  int
}

// FinishRun closes the audit row. An empty errMsg records success.
func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID, totals RunTotals, errMsg string) error {
	now := time.Now().UTC()
	status := types.RunSuccess
	if errMsg != "" {
		status = types.RunFailed
	}
	return s.db.WithContext(ctx).Model(&types.CrawlRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"ended_at":         &now,
			"status":           status,
			"docs_fetched":     totals.Fetched,
			"docs_saved":       totals.Saved,
			"docs_unchanged":   totals.Unchanged,
			"docs_quarantined": totals.Quarantined,
			"fetch_failures":   totals.FetchFails,
			"error_message":    errMsg,
		}).Error
}

// RecentRuns lists the latest crawl runs for the API.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]types.CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []types.CrawlRun
	err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
