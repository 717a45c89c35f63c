package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IBM/arcade/pkg/audit"
	"github.com/IBM/arcade/pkg/cache"
	"github.com/IBM/arcade/pkg/importer"
	"github.com/IBM/arcade/pkg/jobs"
)

// backgroundLoops are the loops that must run on one replica only.
type backgroundLoops struct {
	scheduler *importer.Scheduler
	pool      *jobs.WorkerPool
	retention *audit.RetentionWorker
	cache     *cache.CacheManager
	logger    *slog.Logger
}

// run blocks until ctx is done and every loop has returned.
func (b *backgroundLoops) run(ctx context.Context) {
	b.logger.Info("starting background loops")
	var wg sync.WaitGroup
	for _, loop := range []func(context.Context){b.pool.Run, b.retention.Run, b.invalidateOnPass} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	b.scheduler.Run(ctx)
	wg.Wait()
	b.logger.Info("background loops stopped")
}

func (b *backgroundLoops) invalidateOnPass(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pass := <-b.scheduler.Passes():
			stats := pass.Stats()
			b.logger.Info("import pass finished",
				"imported", stats.ArtifactsImported,
				"failed", stats.ArtifactsFailed,
				"duration", pass.Finished.Sub(pass.Started).String())
			b.cache.InvalidateCatalog()
		}
	}
}

// invalidatingRunner clears cached catalog listings after an on-demand import
// that changed records.
type invalidatingRunner struct {
	*importer.Runner
	cache *cache.CacheManager
}

func (r *invalidatingRunner) RunSourceNamed(ctx context.Context, name string) (importer.Stats, error) {
	stats, err := r.Runner.RunSourceNamed(ctx, name)
	if stats.RecordsCreated+stats.RecordsSuperseded > 0 {
		r.cache.InvalidateCatalog()
	}
	return stats, err
}

var _ jobs.SourceRunner = (*invalidatingRunner)(nil)
