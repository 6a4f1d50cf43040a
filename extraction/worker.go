package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"policylens/config"
	"policylens/logger"
	"policylens/queue"
	"policylens/store"
	"policylens/types"
)

// Options bounds the worker's retry and timeout behavior. Zero values fall
// back to config defaults.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = config.MaxExtractionAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = config.ExtractionBackoffBase
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = config.ExtractionTimeout
	}
	return o
}

// Worker consumes extraction jobs and owns the ExtractedEntity lifecycle.
// It reads record versions but never mutates them beyond extraction status.
// Failures are bounded and local: a document that defeats the inference
// service is marked failed and the worker moves on.
type Worker struct {
	store  *store.Store
	client Client
	opts   Options
	log    *logger.Logger
}

func NewWorker(s *store.Store, client Client, opts Options, log *logger.Logger) *Worker {
	return &Worker{
		store:  s,
		client: client,
		opts:   opts.withDefaults(),
		log:    log.With("component", "extraction"),
	}
}

// Run blocks consuming jobs until ctx is cancelled. Start one Run per
// consumer to fan out across a pool.
func (w *Worker) Run(ctx context.Context, consumer queue.Consumer) error {
	return consumer.Consume(ctx, w.Handle)
}

// Handle processes one job. A nil return acknowledges the message; only
// infrastructure errors (store unreachable) propagate so the queue
// redelivers. Duplicate deliveries are no-ops: an already-extracted version
// is skipped, and a re-run supersedes rather than duplicates.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	version, err := w.store.GetVersion(ctx, job.RecordID, job.Version)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w.log.Warn("extraction job references missing version; dropping",
				"record_id", job.RecordID, "version", job.Version)
			return nil
		}
		return err
	}
	if version.ExtractionStatus == types.ExtractionDone {
		w.log.Debug("version already extracted, skipping",
			"record_id", job.RecordID, "version", job.Version)
		return nil
	}

	doc := Document{
		Title:       version.Title,
		Body:        version.Body,
		Language:    version.Language,
		PublishedAt: version.PublishedAt,
	}
	if record, err := w.store.GetRecordByID(ctx, job.RecordID); err == nil {
		doc.SourceName = record.SourceName
	} else {
		w.log.Debug("source name lookup failed, extracting without it",
			"record_id", job.RecordID, "error", err)
	}

	entities, err := w.extractWithRetry(ctx, doc)
	if err != nil {
		w.log.Error("extraction terminally failed",
			"record_id", job.RecordID, "version", job.Version,
			"attempts", w.opts.MaxAttempts, "error", err)
		return w.store.MarkExtractionFailed(ctx, version.ID)
	}

	rows, err := w.entityRows(entities)
	if err != nil {
		return err
	}
	if err := w.store.ReplaceEntities(ctx, version.ID, rows); err != nil {
		return err
	}
	w.log.Info("extracted entities",
		"record_id", job.RecordID, "version", job.Version, "count", len(rows))
	return nil
}

// extractWithRetry runs the bounded-timeout inference call with exponential
// backoff between attempts.
func (w *Worker) extractWithRetry(ctx context.Context, doc Document) ([]Entity, error) {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
		entities, err := w.client.Extract(callCtx, doc)
		cancel()
		if err == nil {
			return entities, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt < w.opts.MaxAttempts {
			backoff := w.opts.BackoffBase * time.Duration(1<<(attempt-1))
			w.log.Debug("inference call failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (w *Worker) entityRows(entities []Entity) ([]types.ExtractedEntity, error) {
	rows := make([]types.ExtractedEntity, 0, len(entities))
	for _, e := range entities {
		var payload []byte
		if len(e.Attributes) > 0 {
			b, err := json.Marshal(e.Attributes)
			if err != nil {
				return nil, err
			}
			payload = b
		}
		rows = append(rows, types.ExtractedEntity{
			Kind:         e.Kind,
			Name:         e.Name,
			Payload:      payload,
			Confidence:   e.Confidence,
			ModelVersion: w.client.ModelVersion(),
		})
	}
	return rows, nil
}
