// Package worker polls the enrichment job table and runs due jobs with
// bounded concurrency. A Redis wake-up channel shortcuts the poll interval
// when the API server enqueues fresh work.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mindgraph.app/grove/common/logger"
	"mindgraph.app/grove/internal/model"
	"mindgraph.app/grove/internal/service"
)

type Config struct {
	PollInterval time.Duration
	Concurrency  int
}

// fetchFactor oversizes the due-job fetch relative to the concurrency so a
// tick can keep the slots busy even when some jobs are skipped for their
// stream being in flight.
const fetchFactor = 4

type Worker struct {
	enrichment service.EnrichmentService
	wakeups    <-chan struct{}
	cfg        Config

	sem      *semaphore.Weighted
	inFlight sync.WaitGroup

	mu            sync.Mutex
	activeStreams map[string]struct{}

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New builds a worker. wakeups may be nil; the worker then relies on the
// poll interval alone.
func New(enrichment service.EnrichmentService, wakeups <-chan struct{}, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Worker{
		enrichment:    enrichment,
		wakeups:       wakeups,
		cfg:           cfg,
		sem:           semaphore.NewWeighted(int64(cfg.Concurrency)),
		activeStreams: make(map[string]struct{}),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "grove.worker.poller",
	})

	slog.InfoContext(ctx, "enrichment worker started",
		"poll_interval", w.cfg.PollInterval,
		"concurrency", w.cfg.Concurrency,
	)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.inFlight.Wait()
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "enrichment worker stopping")
			w.inFlight.Wait()
			return nil
		case <-ticker.C:
			w.dispatchDue(ctx)
		case <-w.wakeups:
			w.dispatchDue(ctx)
		}
	}
}

// Stop asks the worker to finish in-flight jobs and return from Run.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) dispatchDue(ctx context.Context) {
	jobs, err := w.enrichment.DueJobs(ctx, w.cfg.Concurrency*fetchFactor)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch due jobs", "error", err)
		return
	}

	for _, job := range jobs {
		// One job per stream at a time; a sibling's placement changes the
		// candidate set the next job must see.
		if !w.claimStream(job.StreamID) {
			continue
		}
		if !w.sem.TryAcquire(1) {
			w.releaseStream(job.StreamID)
			return
		}

		w.inFlight.Add(1)
		go func(job model.EnrichmentJob) {
			defer w.inFlight.Done()
			defer w.sem.Release(1)
			defer w.releaseStream(job.StreamID)
			w.runJob(ctx, job)
		}(job)
	}
}

func (w *Worker) runJob(ctx context.Context, job model.EnrichmentJob) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		StreamID: logger.Ptr(job.StreamID),
		NodeID:   logger.Ptr(job.NodeID),
		Attempt:  logger.Ptr(job.AttemptCount + 1),
	})

	if err := w.runJobSafe(ctx, job); err != nil {
		slog.ErrorContext(ctx, "enrichment job bookkeeping failed", "error", err)
	}
}

func (w *Worker) runJobSafe(ctx context.Context, job model.EnrichmentJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in enrichment job", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.enrichment.ProcessJob(ctx, job)
}

func (w *Worker) claimStream(streamID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.activeStreams[streamID]; busy {
		return false
	}
	w.activeStreams[streamID] = struct{}{}
	return true
}

func (w *Worker) releaseStream(streamID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activeStreams, streamID)
}
