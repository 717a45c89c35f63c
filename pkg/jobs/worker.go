package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/arcade/pkg/importer"
)

// SourceRunner runs the import of one configured source. It is satisfied by
// importer.Runner.
type SourceRunner interface {
	RunSourceNamed(ctx context.Context, name string) (importer.Stats, error)
	Sources() []importer.Source
}

// WorkerPool processes queued import jobs using a pool of goroutines.
type WorkerPool struct {
	store  *JobStore
	runner SourceRunner
	cfg    *JobConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(store *JobStore, runner SourceRunner, cfg *JobConfig, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:  store,
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the worker pool. It spawns cfg.Concurrency goroutines,
// each polling for jobs. It blocks until the context is cancelled,
// then waits for all workers to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		"concurrency", wp.cfg.Concurrency,
		"maxRetries", wp.cfg.MaxRetries,
		"pollInterval", wp.cfg.PollInterval.String())

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	wp.logger.Info("worker started", "workerID", workerID)

	for {
		select {
		case <-ctx.Done():
			wp.logger.Info("worker stopped", "workerID", workerID)
			return
		case <-ticker.C:
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne tries to claim and process a single job. It reports whether a
// job was claimed.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	job, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		wp.logger.Error("failed to claim job", "workerID", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	wp.logger.Info("processing job",
		"workerID", workerID,
		"jobID", job.ID,
		"source", job.Source,
		"attempt", job.AttemptCount)

	started := time.Now()
	stats, err := wp.runJob(ctx, job)
	// Bookkeeping outlives shutdown of the run.
	bookCtx := context.WithoutCancel(ctx)
	if err != nil {
		wp.logger.Error("job failed",
			"workerID", workerID,
			"jobID", job.ID,
			"error", err)
		retries := wp.cfg.MaxRetries
		if errors.Is(err, importer.ErrUnknownSource) {
			retries = 0
		}
		if failErr := wp.store.Fail(bookCtx, job.ID, err.Error(), retries); failErr != nil {
			wp.logger.Error("failed to mark job as failed", "jobID", job.ID, "error", failErr)
		}
		return true
	}

	wp.logger.Info("job completed",
		"workerID", workerID,
		"jobID", job.ID,
		"imported", stats.ArtifactsImported,
		"failed", stats.ArtifactsFailed,
		"duration", time.Since(started).String())

	if err := wp.store.Complete(bookCtx, job.ID, stats, time.Since(started)); err != nil {
		wp.logger.Error("failed to mark job as complete", "jobID", job.ID, "error", err)
	}
	return true
}

func (wp *WorkerPool) runJob(ctx context.Context, job *ImportJob) (importer.Stats, error) {
	if job.Source != AllSources {
		return wp.runner.RunSourceNamed(ctx, job.Source)
	}
	var total importer.Stats
	for _, src := range wp.runner.Sources() {
		stats, err := wp.runner.RunSourceNamed(ctx, src.Name)
		total.Add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// cleanupLoop periodically recovers stuck jobs and deletes old finished ones.
func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", "error", err)
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck jobs", "count", recovered)
		}
	}

	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", "error", err)
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", "count", deleted)
		}
	}
}

var _ SourceRunner = (*importer.Runner)(nil)
