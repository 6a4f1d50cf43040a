package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"policylens/config"
	"policylens/dedup"
	"policylens/fetcher"
	"policylens/logger"
	"policylens/pipeline"
	"policylens/store"
	"policylens/types"
)

// Archive optionally mirrors raw documents to object storage before
// processing. Failures are logged, never fatal.
type Archive interface {
	ArchiveDocument(ctx context.Context, doc *types.RawDocument) error
}

// Orchestrator wires one batch end to end: fetch, dedup gate, pipeline,
// durable store. Extraction runs separately off the queue the store
// publishes into.
type Orchestrator struct {
	fetcher    *fetcher.Fetcher
	index      dedup.Index
	pipe       *pipeline.Pipeline
	store      *store.Store
	sink       pipeline.Sink
	archive    Archive
	workers    int
	requeueAge time.Duration
	log        *logger.Logger
}

type Config struct {
	Fetcher *fetcher.Fetcher
	Index   dedup.Index
	Pipe    *pipeline.Pipeline
	Store   *store.Store
	Sink    pipeline.Sink
	Archive Archive // nil disables archiving
	Workers int
	// RequeueAge is how long a version may sit in extraction-pending before
	// a batch republishes its job. Covers enqueues lost to broker failures.
	RequeueAge time.Duration
}

func New(cfg Config, log *logger.Logger) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	requeueAge := cfg.RequeueAge
	if requeueAge <= 0 {
		requeueAge = config.RequeuePendingAge
	}
	return &Orchestrator{
		fetcher:    cfg.Fetcher,
		index:      cfg.Index,
		pipe:       cfg.Pipe,
		store:      cfg.Store,
		sink:       cfg.Sink,
		archive:    cfg.Archive,
		workers:    workers,
		requeueAge: requeueAge,
		log:        log.With("component", "orchestrator"),
	}
}

// BatchReport summarizes one completed batch.
type BatchReport struct {
	RunID  uuid.UUID
	Totals store.RunTotals
}

// RunBatch executes one crawl cycle for the given targets. Failures are
// contained per target and per document; only being unable to open or close
// the audit row fails the batch itself. Cancelling ctx stops new fetches and
// discards fetched-but-uncommitted documents.
func (o *Orchestrator) RunBatch(ctx context.Context, jobName string, targets []types.Target) (BatchReport, error) {
	runID, err := o.store.StartRun(ctx, jobName)
	if err != nil {
		return BatchReport{}, err
	}
	o.log.Info("batch started", "job", jobName, "targets", len(targets), "run_id", runID)

	// Sweep versions whose extraction enqueue was lost before fetching new
	// work, so a broker hiccup never strands a version in pending.
	if n, err := o.store.RequeuePending(ctx, o.requeueAge); err != nil {
		o.log.Error("requeue of pending extractions failed", "error", err)
	} else if n > 0 {
		o.log.Info("requeued stranded extraction jobs", "count", n)
	}

	var (
		mu     sync.Mutex
		totals store.RunTotals
	)
	results := o.fetcher.FetchBatch(ctx, targets)

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for res := range results {
				if ctx.Err() != nil {
					// Drain without committing once the batch is cancelled.
					continue
				}
				o.ingest(ctx, res, &mu, &totals)
			}
		}()
	}
	wg.Wait()

	errMsg := ""
	if ctx.Err() != nil {
		errMsg = ctx.Err().Error()
	}
	// Close the audit row even when the batch context is gone.
	if err := o.store.FinishRun(context.WithoutCancel(ctx), runID, totals, errMsg); err != nil {
		return BatchReport{RunID: runID, Totals: totals}, err
	}

	o.log.Info("batch finished", "job", jobName, "run_id", runID,
		"fetched", totals.Fetched, "saved", totals.Saved,
		"unchanged", totals.Unchanged, "quarantined", totals.Quarantined,
		"fetch_failures", totals.FetchFails)
	return BatchReport{RunID: runID, Totals: totals}, nil
}

// ingest takes one fetch result through the dedup gate, pipeline, and store.
func (o *Orchestrator) ingest(ctx context.Context, res fetcher.Result, mu *sync.Mutex, totals *store.RunTotals) {
	if res.Failure != nil {
		mu.Lock()
		totals.FetchFails++
		mu.Unlock()
		return
	}
	doc := res.Doc

	mu.Lock()
	totals.Fetched++
	mu.Unlock()

	if o.archive != nil {
		if err := o.archive.ArchiveDocument(ctx, doc); err != nil {
			o.log.Warn("raw document archive failed", "url", doc.CanonicalURL, "error", err)
		}
	}

	check, err := o.index.Check(ctx, doc.CanonicalURL, doc.ContentHash)
	if err != nil {
		o.log.Error("dedup check failed, skipping document", "url", doc.CanonicalURL, "error", err)
		return
	}
	if check.Status == dedup.StatusUnchanged {
		mu.Lock()
		totals.Unchanged++
		mu.Unlock()
		return
	}

	outcome := o.pipe.Process(types.ItemFromRaw(doc))
	if !outcome.Accepted() {
		rej := outcome.Rejected
		o.log.Info("item quarantined", "url", doc.CanonicalURL,
			"stage", rej.Stage, "reason", rej.Reason)
		if err := o.sink.Quarantine(ctx, *rej); err != nil {
			o.log.Error("quarantine write failed", "url", doc.CanonicalURL, "error", err)
		}
		mu.Lock()
		totals.Quarantined++
		mu.Unlock()
		return
	}

	result, err := o.store.Upsert(ctx, outcome.Item)
	if err != nil {
		// Roll the index back so the next run retries this document. The
		// batch context may be what aborted the upsert, so the rollback
		// itself must not run on it.
		if restoreErr := o.index.Restore(context.WithoutCancel(ctx), doc.CanonicalURL, check.PriorHash); restoreErr != nil {
			o.log.Error("dedup restore failed", "url", doc.CanonicalURL, "error", restoreErr)
		}
		o.log.Error("store upsert failed", "url", doc.CanonicalURL, "error", err)
		return
	}

	mu.Lock()
	if result.Created {
		totals.Saved++
	} else {
		totals.Unchanged++
	}
	mu.Unlock()
}
