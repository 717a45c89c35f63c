package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/IBM/arcade/pkg/archive"
	"github.com/IBM/arcade/pkg/provenance"
	"github.com/IBM/arcade/pkg/store"
)

// Stats counts what one source run did.
type Stats struct {
	ArtifactsSeen     int `json:"artifacts_seen"`
	ArtifactsSkipped  int `json:"artifacts_skipped"`
	ArtifactsImported int `json:"artifacts_imported"`
	ArtifactsFailed   int `json:"artifacts_failed"`

	RecordsCreated    int `json:"records_created"`
	RecordsSuperseded int `json:"records_superseded"`
	RecordsSkipped    int `json:"records_skipped"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.ArtifactsSeen += o.ArtifactsSeen
	s.ArtifactsSkipped += o.ArtifactsSkipped
	s.ArtifactsImported += o.ArtifactsImported
	s.ArtifactsFailed += o.ArtifactsFailed
	s.RecordsCreated += o.RecordsCreated
	s.RecordsSuperseded += o.RecordsSuperseded
	s.RecordsSkipped += o.RecordsSkipped
}

func (s *Stats) countRecord(o Outcome) {
	switch o {
	case OutcomeCreated:
		s.RecordsCreated++
	case OutcomeSuperseded:
		s.RecordsSuperseded++
	case OutcomeSkipped:
		s.RecordsSkipped++
	}
}

// SourceResult is the result of running one source.
type SourceResult struct {
	Source string
	Stats  Stats
	Err    error
}

// ErrUnknownSource is returned when a source name is not configured.
var ErrUnknownSource = errors.New("unknown source")

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// Runner imports the artifacts of configured sources from one bucket.
type Runner struct {
	bucket     archive.Bucket
	store      store.EntityStore
	tracker    *provenance.Tracker
	superseder *Superseder
	sources    []Source
	cfg        *Config

	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	// one run at a time per source name
	running *provenance.KeyedMutex
}

// NewRunner creates a Runner. Sources are validated and their patterns
// compiled.
func NewRunner(bucket archive.Bucket, s store.EntityStore, sources []Source, cfg *Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	compiled := make([]Source, len(sources))
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if err := src.compile(); err != nil {
			return nil, err
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("duplicate source %q", src.Name)
		}
		seen[src.Name] = true
		compiled[i] = src
	}
	r := &Runner{
		bucket:  bucket,
		store:   s,
		tracker: provenance.NewTracker(s),
		sources: compiled,
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  otel.Tracer("github.com/IBM/arcade/pkg/importer"),
		running: provenance.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.superseder = NewSuperseder(s, r.logger)
	return r, nil
}

// Sources returns the configured sources.
func (r *Runner) Sources() []Source {
	return append([]Source(nil), r.sources...)
}

// Source looks up a configured source by name.
func (r *Runner) Source(name string) (Source, bool) {
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Run imports every source in order and returns one result per source.
func (r *Runner) Run(ctx context.Context) []SourceResult {
	results := make([]SourceResult, 0, len(r.sources))
	for _, src := range r.sources {
		if ctx.Err() != nil {
			break
		}
		stats, err := r.RunSource(ctx, src)
		results = append(results, SourceResult{Source: src.Name, Stats: stats, Err: err})
	}
	return results
}

// RunSourceNamed runs the configured source called name.
func (r *Runner) RunSourceNamed(ctx context.Context, name string) (Stats, error) {
	src, ok := r.Source(name)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return r.RunSource(ctx, src)
}

// RunSource imports every not yet imported artifact of src. A failing
// artifact is logged and counted, and never stops the run; the returned error
// reports setup failures and cancellation only.
func (r *Runner) RunSource(ctx context.Context, src Source) (Stats, error) {
	unlock := r.running.Lock(src.Name)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "importer.RunSource", trace.WithAttributes(attribute.String("source", src.Name)))
	defer span.End()
	started := time.Now()

	var stats Stats
	expander, err := expanderFor(src.Format)
	if err != nil {
		return stats, err
	}
	bucketRow, err := r.tracker.ResolveBucket(ctx, r.bucket.Name())
	if err != nil {
		return stats, err
	}
	ds, err := r.tracker.ResolveDataSource(ctx, src.Name, src.Public)
	if err != nil {
		return stats, err
	}

	names := src.Filter(r.bucket.ListNames(ctx))
	r.logger.Info("importing source", "source", src.Name, "artifacts", len(names))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(r.cfg.Concurrency, 1))
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := r.importArtifact(ctx, src, expander, bucketRow, ds, name)
			mu.Lock()
			stats.Add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.metrics.sourceDone(src.Name, time.Since(started).Seconds(), stats.ArtifactsFailed, float64(time.Now().Unix()))
	span.SetAttributes(
		attribute.Int("artifacts.seen", stats.ArtifactsSeen),
		attribute.Int("artifacts.imported", stats.ArtifactsImported),
		attribute.Int("artifacts.failed", stats.ArtifactsFailed),
	)
	r.logger.Info("source import finished",
		"source", src.Name,
		"seen", stats.ArtifactsSeen,
		"imported", stats.ArtifactsImported,
		"skipped", stats.ArtifactsSkipped,
		"failed", stats.ArtifactsFailed,
		"duration", time.Since(started))
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")
		return stats, err
	}
	return stats, nil
}

// importArtifact runs one artifact under its own deadline and reports what
// it contributed to the run.
func (r *Runner) importArtifact(ctx context.Context, src Source, expander Expander, bucketRow *store.Bucket, ds *store.DataSource, name string) Stats {
	stats := Stats{ArtifactsSeen: 1}
	if r.cfg.ArtifactTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.ArtifactTimeout)
		defer cancel()
	}
	ctx, span := r.tracer.Start(ctx, "importer.Artifact", trace.WithAttributes(
		attribute.String("source", src.Name),
		attribute.String("artifact", name),
	))
	defer span.End()

	result, err := r.processArtifact(ctx, expander, bucketRow, ds, name, &stats)
	switch {
	case err != nil:
		stats.ArtifactsFailed++
		result = artifactFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		r.logger.Error("could not import artifact", "source", src.Name, "artifact", name, "error", err)
	case result == artifactImported:
		stats.ArtifactsImported++
	default:
		stats.ArtifactsSkipped++
	}
	r.metrics.artifact(src.Name, result)
	span.SetAttributes(attribute.String("result", result))
	return stats
}

func (r *Runner) processArtifact(ctx context.Context, expander Expander, bucketRow *store.Bucket, ds *store.DataSource, name string, stats *Stats) (string, error) {
	art, err := r.tracker.ResolveArtifact(ctx, bucketRow, name)
	if err != nil {
		return "", err
	}
	if art.Imported {
		return artifactSkipped, nil
	}

	unlock := r.tracker.LockArtifact(bucketRow, name)
	defer unlock()
	if err := r.tracker.Refresh(ctx, art); err != nil {
		return "", err
	}
	if art.Imported {
		return artifactSkipped, nil
	}

	r.logger.Info("fetching artifact", "source", ds.Name, "artifact", name)
	data, ok := r.bucket.Download(ctx, name)
	if !ok {
		return artifactAbsent, nil
	}

	parsed, err := expander.Expand(ctx, data)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", name, err)
	}

	for _, p := range parsed {
		obj, err := r.resolveObject(ctx, p)
		if err != nil {
			return "", err
		}
		outcome, err := r.superseder.Apply(ctx, obj, ds, art, p.Record)
		if err != nil {
			return "", fmt.Errorf("member %s: %w", p.Member, err)
		}
		stats.countRecord(outcome)
		r.metrics.record(ds.Name, outcome)
	}

	if err := r.tracker.MarkImported(ctx, art); err != nil {
		return "", err
	}
	r.logger.Info("imported artifact", "source", ds.Name, "artifact", name, "records", len(parsed))
	return artifactImported, nil
}

// resolveObject finds the tracked object for p, creating it from the record
// header when it is new.
func (r *Runner) resolveObject(ctx context.Context, p Parsed) (*store.TrackedObject, error) {
	obj, _, err := store.FindOrCreate(ctx, r.store,
		store.Where{"tracking_id": p.TrackingID},
		&store.TrackedObject{
			TrackingID:              p.TrackingID,
			CatalogID:               p.TrackingID,
			InternationalDesignator: p.Record.ObjectID,
			Name:                    p.Record.ObjectName,
		})
	if err != nil {
		return nil, fmt.Errorf("resolve tracked object %s: %w", p.TrackingID, err)
	}
	return obj, nil
}
