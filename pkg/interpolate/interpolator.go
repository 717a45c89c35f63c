package interpolate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/IBM/arcade/pkg/cache"
	"github.com/IBM/arcade/pkg/oem"
	"github.com/IBM/arcade/pkg/store"
)

const (
	DefaultPoints = 5
	DefaultStep   = 60.0

	// UnitScale converts stored kilometres to the metres the engine expects.
	// Vectors are multiplied before the engine call and divided after it.
	UnitScale = 1000.0
)

// J2000 is the epoch engine offsets are measured from, expressed in UTC.
var J2000 = time.Date(2000, time.January, 1, 11, 58, 55, 816_000_000, time.UTC)

// Interpolator resamples ephemeris records through an Engine and caches the
// results.
type Interpolator struct {
	engine Engine
	cache  *cache.LRUCache[*oem.Record]
	logger *slog.Logger
	tracer trace.Tracer
}

// NewInterpolator creates an Interpolator. A nil cache disables caching.
func NewInterpolator(engine Engine, results *cache.LRUCache[*oem.Record], logger *slog.Logger) *Interpolator {
	if engine == nil {
		engine = LagrangeEngine{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpolator{
		engine: engine,
		cache:  results,
		logger: logger,
		tracer: otel.Tracer("github.com/IBM/arcade/pkg/interpolate"),
	}
}

// Interpolate returns rec resampled every step seconds across its lines. A
// non-positive step or point count selects the default; a non-finite step
// fails with ErrInvalidStep and a step producing more than MaxSamples states
// with ErrTooManySamples. The returned record carries rec's header unchanged.
func (i *Interpolator) Interpolate(ctx context.Context, rec *store.EphemerisRecord, step float64, points int) (*oem.Record, error) {
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("interpolate record %d: %w: %g", rec.ID, ErrInvalidStep, step)
	}
	if step <= 0 {
		step = DefaultStep
	}
	if points <= 0 {
		points = DefaultPoints
	}

	// Supersession replaces rows, so stop time and creation date guard
	// against a reused id.
	key := fmt.Sprintf("%d|%s|%s|%g|%d", rec.ID, rec.StopTime, rec.CreationDate, step, points)
	if i.cache != nil {
		if out, ok := i.cache.Get(key); ok {
			return out, nil
		}
	}

	ctx, span := i.tracer.Start(ctx, "interpolate.Interpolate", trace.WithAttributes(
		attribute.Int64("record", int64(rec.ID)),
		attribute.Float64("step", step),
		attribute.Int("points", points),
	))
	defer span.End()

	out, err := i.resample(ctx, rec.OEM(), step, points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("interpolate record %d: %w", rec.ID, err)
	}
	if i.cache != nil {
		i.cache.Set(key, out)
	}
	i.logger.Debug("interpolated record",
		"record", rec.ID,
		"step", step,
		"in", len(rec.Lines),
		"out", len(out.Lines))
	return out, nil
}

func (i *Interpolator) resample(ctx context.Context, src *oem.Record, step float64, points int) (*oem.Record, error) {
	if len(src.Lines) == 0 {
		return nil, oem.ErrNoEphemeris
	}
	req := Request{
		Frame:    src.RefFrame,
		Offsets:  make([]float64, len(src.Lines)),
		Vectors:  make([][6]float64, len(src.Lines)),
		Points:   points,
		OutFrame: src.RefFrame,
		Step:     step,
	}
	for n, line := range src.Lines {
		if len(line.StateVector) != oem.StateVectorSize {
			return nil, fmt.Errorf("line %d: %w", n, oem.ErrInvalidStateVector)
		}
		epoch, err := oem.ParseTimestamp(line.Epoch)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		req.Offsets[n] = ToOffset(epoch)
		for c, x := range line.StateVector {
			req.Vectors[n][c] = x * UnitScale
		}
	}
	req.Start = req.Offsets[0]
	req.End = req.Offsets[len(req.Offsets)-1]
	if err := req.validate(); err != nil {
		return nil, err
	}

	states, err := i.engine.Interpolate(ctx, req)
	if err != nil {
		return nil, err
	}

	lines := make([]oem.EphemerisLine, len(states))
	for n, st := range states {
		sv := make([]float64, oem.StateVectorSize)
		for c, x := range st.Vector {
			sv[c] = x / UnitScale
		}
		lines[n] = oem.EphemerisLine{Epoch: oem.FormatTimestamp(FromOffset(st.Offset)), StateVector: sv}
	}
	return src.WithLines(lines), nil
}

// ToOffset returns t as seconds past J2000.
func ToOffset(t time.Time) float64 {
	return t.Sub(J2000).Seconds()
}

// FromOffset is the inverse of ToOffset, rounded to the microsecond.
func FromOffset(offset float64) time.Time {
	whole, frac := math.Modf(offset)
	d := time.Duration(whole)*time.Second + time.Duration(math.Round(frac*1e6))*time.Microsecond
	return J2000.Add(d).UTC()
}
