package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"policylens/api"
	"policylens/common"
	"policylens/config"
	"policylens/dedup"
	"policylens/extraction"
	"policylens/fetcher"
	"policylens/logger"
	"policylens/orchestrator"
	"policylens/pipeline"
	"policylens/queue"
	"policylens/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		panic(err)
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("service exited", "error", err)
	}
	log.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// A component failure cancels everything else, not only a signal.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	publisher, err := queue.NewKafkaPublisher(queue.KafkaConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.ExtractionTopic,
		GroupID: cfg.ConsumerGroup,
	}, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	st, err := store.NewPostgres(cfg.PostgresDSN, publisher, log)
	if err != nil {
		return err
	}

	index, err := dedup.NewRedisIndex(dedup.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer index.Close()

	fetch := fetcher.New(fetcher.Options{
		GlobalConcurrency: cfg.FetchConcurrency,
		PerSourceDelay:    cfg.PerSourceDelay,
		MaxAttempts:       cfg.MaxFetchAttempts,
	}, log)

	pipe := pipeline.Default(pipeline.Policy{
		MaxPublishAge: config.MaxPublishAge,
		MinBodyWords:  config.MinBodyWords,
	})

	archive, err := buildArchive(ctx, cfg, log)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Config{
		Fetcher: fetch,
		Index:   index,
		Pipe:    pipe,
		Store:   st,
		Sink:    store.NewQuarantineSink(st),
		Archive: archive,
	}, log)

	runBatch := func(ctx context.Context) error {
		report, err := orch.RunBatch(ctx, "scheduled_ingest", cfg.Targets)
		if err != nil {
			return err
		}
		log.Info("batch finished",
			"run_id", report.RunID,
			"fetched", report.Totals.Fetched,
			"saved", report.Totals.Saved,
			"unchanged", report.Totals.Unchanged,
			"quarantined", report.Totals.Quarantined,
			"fetch_failures", report.Totals.FetchFails)
		return nil
	}

	client, err := extraction.NewCohereClient(cfg.CohereAPIKey, cfg.ExtractionModel)
	if err != nil {
		return err
	}
	worker := extraction.NewWorker(st, client, extraction.Options{}, log)

	var wg sync.WaitGroup
	errCh := make(chan error, config.ExtractionWorkers+2)

	for i := 0; i < config.ExtractionWorkers; i++ {
		consumer, err := queue.NewKafkaConsumer(queue.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.ExtractionTopic,
			GroupID: cfg.ConsumerGroup,
		}, log)
		if err != nil {
			return err
		}
		defer consumer.Close()

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log.Info("extraction worker started", "worker", id)
			if err := worker.Run(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}(i)
	}

	scheduler := &orchestrator.Scheduler{
		Trigger: orchestrator.IntervalTrigger{Interval: cfg.ScheduleInterval},
		Job:     runBatch,
		JobName: "scheduled_ingest",
		Log:     log,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()

	server := api.NewServer(st, index, runBatch, log)
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: api.NewRouter(server)}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("api server listening", "addr", cfg.APIAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Kick off an initial batch once the store answers, so a fresh deploy
	// does not sit idle until the first scheduled fire.
	go func() {
		probe := orchestrator.HTTPProbe(nil, "http://localhost"+cfg.APIAddr+"/health")
		if err := orchestrator.WaitReady(ctx, probe, 2*time.Second, 15); err != nil {
			log.Warn("readiness probe gave up, skipping initial batch", "error", err)
			return
		}
		if err := runBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("initial batch failed", "error", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("component failed, shutting down", "error", runErr)
		cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}

	wg.Wait()
	return runErr
}

// buildArchive wires the optional S3 raw-document archive. Returns a nil
// interface when no bucket is configured so the orchestrator skips archiving.
func buildArchive(ctx context.Context, cfg *config.Config, log *logger.Logger) (orchestrator.Archive, error) {
	if cfg.S3Bucket == "" {
		log.Info("s3 archive not configured, raw documents will not be archived")
		return nil, nil
	}
	client, err := common.NewS3(ctx, common.S3Config{
		Region:       cfg.S3Region,
		UsePathStyle: cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return common.NewDocumentArchive(client, cfg.S3Bucket, cfg.S3Prefix, log), nil
}
