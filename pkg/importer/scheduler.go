package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RunRecorder persists the bookkeeping of scheduled source runs.
type RunRecorder interface {
	BeginRun(ctx context.Context, source string) (runID string, err error)
	FinishRun(ctx context.Context, runID string, stats Stats, runErr error) error
}

// PassResult reports one completed pass over every source.
type PassResult struct {
	Started  time.Time
	Finished time.Time
	Sources  []SourceResult
}

// Stats sums the stats of every source in the pass.
func (p PassResult) Stats() Stats {
	var total Stats
	for _, s := range p.Sources {
		total.Add(s.Stats)
	}
	return total
}

// Scheduler runs an import pass right away and then, after sleeping for the
// interval, the next one, until stopped.
type Scheduler struct {
	runner   *Runner
	interval time.Duration
	recorder RunRecorder
	logger   *slog.Logger

	passes chan PassResult

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a Scheduler. recorder may be nil.
func NewScheduler(runner *Runner, interval time.Duration, recorder RunRecorder, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		recorder: recorder,
		logger:   logger,
		passes:   make(chan PassResult, 1),
	}
}

// Passes delivers a result after every pass. A result nobody reads is
// replaced by the next one.
func (s *Scheduler) Passes() <-chan PassResult {
	return s.passes
}

// Start launches the pass loop. Calling Start on a running scheduler does
// nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the running pass, if any, and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.logger.Info("import scheduler started", "interval", s.interval.String())

	for {
		result := s.RunOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info("import scheduler stopped")
			return
		}
		s.publish(result)
		s.logger.Info("importers finished, waiting for next pass", "next", s.interval.String())

		// The interval is idle time after a pass, however long the pass took.
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("import scheduler stopped")
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) publish(result PassResult) {
	select {
	case s.passes <- result:
		return
	default:
	}
	// Drop the unread result.
	select {
	case <-s.passes:
	default:
	}
	select {
	case s.passes <- result:
	default:
	}
}

// RunOnce runs one pass over every source, recording each source run.
func (s *Scheduler) RunOnce(ctx context.Context) PassResult {
	result := PassResult{Started: time.Now()}
	for _, src := range s.runner.Sources() {
		if ctx.Err() != nil {
			break
		}
		runID := s.beginRun(ctx, src.Name)
		stats, err := s.runner.RunSource(ctx, src)
		s.finishRun(ctx, runID, stats, err)
		result.Sources = append(result.Sources, SourceResult{Source: src.Name, Stats: stats, Err: err})
	}
	result.Finished = time.Now()
	return result
}

func (s *Scheduler) beginRun(ctx context.Context, source string) string {
	if s.recorder == nil {
		return ""
	}
	id, err := s.recorder.BeginRun(ctx, source)
	if err != nil {
		s.logger.Warn("failed to record run start", "source", source, "error", err)
		return ""
	}
	return id
}

func (s *Scheduler) finishRun(ctx context.Context, runID string, stats Stats, runErr error) {
	if s.recorder == nil || runID == "" {
		return
	}
	// The pass context may already be canceled; the bookkeeping still needs
	// to land.
	ctx = context.WithoutCancel(ctx)
	if err := s.recorder.FinishRun(ctx, runID, stats, runErr); err != nil {
		s.logger.Warn("failed to record run result", "runID", runID, "error", err)
	}
}
