// Package batch runs the resolve, fetch and extract pipeline over a batch of
// requests with bounded concurrency and per-item failure isolation.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"form990/internal/config"
	"form990/internal/logger"
	"form990/internal/metrics"
	"form990/internal/models"
	"form990/internal/table"
)

// Resolver maps a request to a document handle.
type Resolver interface {
	Resolve(ctx context.Context, req models.Request) (models.DocumentHandle, error)
}

// Fetcher downloads a document by handle.
type Fetcher interface {
	Fetch(ctx context.Context, handle models.DocumentHandle) (models.RawDocument, error)
}

// Extractor turns a raw document into a record.
type Extractor interface {
	Extract(raw models.RawDocument) (*models.Record, error)
}

// Coordinator fans requests out to a fixed number of workers.
type Coordinator struct {
	resolver    Resolver
	fetcher     Fetcher
	extractor   Extractor
	concurrency int
	maxRows     int
	logger      *logger.Logger
}

// NewCoordinator creates a coordinator. A nil logger disables logging.
func NewCoordinator(r Resolver, f Fetcher, e Extractor, cfg config.BatchConfig, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.Discard()
	}

	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Coordinator{
		resolver:    r,
		fetcher:     f,
		extractor:   e,
		concurrency: concurrency,
		maxRows:     cfg.MaxRows,
		logger:      log,
	}
}

// MaxRows returns the batch size ceiling (0 means unlimited).
func (c *Coordinator) MaxRows() int {
	return c.maxRows
}

// Run processes every request and returns the shaped result.
//
// A batch over the row cap fails with models.ErrTooManyRows before any request
// is started. When no request produced a record the partial result is returned
// together with models.ErrEmptyResult. If progress is non-nil one event is sent
// per finished request; the caller must drain it until Run returns.
func (c *Coordinator) Run(ctx context.Context, reqs []models.Request, progress chan<- models.Event) (*models.BatchResult, error) {
	if c.maxRows > 0 && len(reqs) > c.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit is %d", models.ErrTooManyRows, len(reqs), c.maxRows)
	}

	start := time.Now()
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID)

	log.Info("Batch started", "requests", len(reqs), "workers", min(c.concurrency, len(reqs)))

	result := &models.BatchResult{
		RunID:  runID,
		Counts: make(map[models.Status]int, len(models.Statuses)),
	}

	jobs := make(chan models.Request)
	outcomes := make(chan models.Outcome)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)

		for _, req := range reqs {
			if err := gctx.Err(); err != nil {
				return err
			}

			select {
			case jobs <- req:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		return nil
	})

	for range min(c.concurrency, len(reqs)) {
		g.Go(func() error {
			for req := range jobs {
				outcomes <- c.process(gctx, req)
			}

			return nil
		})
	}

	var runErr error

	go func() {
		runErr = g.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		result.Outcomes = append(result.Outcomes, o)
		result.Counts[o.Status]++

		if o.Record != nil {
			result.Records = append(result.Records, o.Record)
		}

		metrics.ObserveItem(string(o.Status))

		evt := newEvent(runID, o, len(result.Outcomes), len(reqs))
		logOutcome(log, evt, o)

		if progress != nil {
			progress <- evt
		}
	}

	result.Duration = time.Since(start)

	if runErr != nil {
		metrics.ObserveBatch("canceled", result.Duration)

		return result, fmt.Errorf("batch interrupted: %w", runErr)
	}

	if len(result.Records) == 0 {
		metrics.ObserveBatch("empty", result.Duration)
		log.Warn("Batch produced no records", "requests", len(reqs), "duration", result.Duration)

		return result, models.ErrEmptyResult
	}

	result.Table = table.Shape(result.Records)

	metrics.ObserveBatch("ok", result.Duration)
	log.Info("Batch finished",
		"records", len(result.Records),
		"not_found", result.Counts[models.StatusNotFound],
		"download_failed", result.Counts[models.StatusDownloadFailed],
		"parse_failed", result.Counts[models.StatusParseFailed],
		"duration", result.Duration)

	return result, nil
}

// process runs one request through the pipeline. It never panics.
func (c *Coordinator) process(ctx context.Context, req models.Request) (out models.Outcome) {
	start := time.Now()
	out.Request = req

	metrics.ItemStarted()

	defer func() {
		metrics.ItemDone()

		if r := recover(); r != nil {
			out.Record = nil
			out.Err = fmt.Errorf("%w: panic: %v", models.ErrExtractionFailed, r)
		}

		out.Status = models.Classify(out.Err)
		out.Duration = time.Since(start)
	}()

	stageStart := time.Now()
	handle, err := c.resolver.Resolve(ctx, req)
	metrics.ObserveStage(metrics.StageResolve, time.Since(stageStart))

	if err != nil {
		out.Err = err

		return out
	}

	out.Handle = handle

	stageStart = time.Now()
	raw, err := c.fetcher.Fetch(ctx, handle)
	metrics.ObserveStage(metrics.StageFetch, time.Since(stageStart))

	if err != nil {
		out.Err = err

		return out
	}

	stageStart = time.Now()
	rec, err := c.extractor.Extract(raw)
	metrics.ObserveStage(metrics.StageExtract, time.Since(stageStart))

	if err != nil {
		out.Err = err

		return out
	}

	out.Record = rec

	return out
}
