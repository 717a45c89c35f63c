// Package interpolate resamples stored ephemerides onto a uniform time grid.
package interpolate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrNoSamples       = errors.New("no samples to interpolate")
	ErrSampleMismatch  = errors.New("offsets and vectors differ in length")
	ErrInvalidStep     = errors.New("step must be a positive finite number")
	ErrTooManySamples  = errors.New("step yields too many samples")
	ErrInvalidPoints   = errors.New("point count must be positive")
	ErrInvalidSpan     = errors.New("end offset precedes start offset")
	ErrFrameConversion = errors.New("frame conversion is not supported")
)

// State is one propagated sample: seconds past the J2000 epoch and a state
// vector in engine units.
type State struct {
	Offset float64
	Vector [6]float64
}

// Request is the input to a propagation engine.
type Request struct {
	Frame    string
	Offsets  []float64
	Vectors  [][6]float64
	Points   int
	OutFrame string
	Start    float64
	End      float64
	Step     float64
}

func (r Request) validate() error {
	if len(r.Offsets) == 0 {
		return ErrNoSamples
	}
	if len(r.Offsets) != len(r.Vectors) {
		return fmt.Errorf("%w: %d offsets, %d vectors", ErrSampleMismatch, len(r.Offsets), len(r.Vectors))
	}
	if !(r.Step > 0) || math.IsInf(r.Step, 0) {
		return fmt.Errorf("%w: %g", ErrInvalidStep, r.Step)
	}
	if r.Points <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPoints, r.Points)
	}
	if math.IsNaN(r.Start) || math.IsNaN(r.End) || r.End < r.Start {
		return fmt.Errorf("%w: %g < %g", ErrInvalidSpan, r.End, r.Start)
	}
	if n := (r.End - r.Start) / r.Step; n >= MaxSamples {
		return fmt.Errorf("%w: %g over %g seconds exceeds %d", ErrTooManySamples, r.Step, r.End-r.Start, MaxSamples)
	}
	return nil
}

// MaxSamples bounds the number of states one request may produce.
const MaxSamples = 1 << 20

// Engine produces states on the grid Start, Start+Step, ... up to End.
type Engine interface {
	Interpolate(ctx context.Context, req Request) ([]State, error)
}

// sampleTolerance is how close, in seconds, a grid offset must be to a
// sample to return the sample unchanged.
const sampleTolerance = 1e-6

// LagrangeEngine interpolates each vector component with a Lagrange
// polynomial through the Points samples nearest the requested offset. It
// does not convert between frames.
type LagrangeEngine struct{}

var _ Engine = LagrangeEngine{}

func (LagrangeEngine) Interpolate(ctx context.Context, req Request) ([]State, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.OutFrame != "" && req.OutFrame != req.Frame {
		return nil, fmt.Errorf("%w: %s to %s", ErrFrameConversion, req.Frame, req.OutFrame)
	}

	count := int(math.Floor((req.End-req.Start)/req.Step+sampleTolerance)) + 1
	out := make([]State, 0, count)
	for k := 0; k < count; k++ {
		if k%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t := req.Start + float64(k)*req.Step
		out = append(out, State{Offset: t, Vector: lagrangeAt(req.Offsets, req.Vectors, req.Points, t)})
	}
	return out, nil
}

func lagrangeAt(xs []float64, ys [][6]float64, points int, t float64) [6]float64 {
	i := sort.SearchFloat64s(xs, t)
	for _, j := range []int{i - 1, i} {
		if j >= 0 && j < len(xs) && math.Abs(xs[j]-t) < sampleTolerance {
			return ys[j]
		}
	}

	n := points
	if n > len(xs) {
		n = len(xs)
	}
	lo := i - n/2
	if lo < 0 {
		lo = 0
	}
	if lo+n > len(xs) {
		lo = len(xs) - n
	}

	var v [6]float64
	for a := lo; a < lo+n; a++ {
		w := 1.0
		for b := lo; b < lo+n; b++ {
			if b != a {
				w *= (t - xs[b]) / (xs[a] - xs[b])
			}
		}
		for c := range v {
			v[c] += w * ys[a][c]
		}
	}
	return v
}
