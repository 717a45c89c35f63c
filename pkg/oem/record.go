// Package oem defines the canonical orbit ephemeris message record and the
// parsers that turn archived feed members into it.
package oem

import (
	"fmt"
)

// StateVectorSize is the number of components in a state vector:
// position (x, y, z) followed by velocity (vx, vy, vz).
const StateVectorSize = 6

// KnownFrames lists the reference frames a record may declare.
var KnownFrames = map[string]struct{}{
	"EME2000":  {},
	"GCRF":     {},
	"ICRF":     {},
	"ITRF2000": {},
	"ITRF-93":  {},
	"ITRF-97":  {},
	"TEME":     {},
	"TOD":      {},
}

// EphemerisLine is a single timestamped state vector.
type EphemerisLine struct {
	Epoch       string    `json:"epoch"`
	StateVector []float64 `json:"state_vector"`
}

// Record is a parsed ephemeris for one tracked object. All timestamps are in
// TimestampLayout so that plain string comparison orders them in time.
type Record struct {
	CCSDSOEMVersion string          `json:"ccsds_oem_vers"`
	CreationDate    string          `json:"creation_date"`
	Originator      string          `json:"originator"`
	ObjectName      string          `json:"object_name"`
	ObjectID        string          `json:"object_id"`
	CenterName      string          `json:"center_name"`
	RefFrame        string          `json:"ref_frame"`
	TimeSystem      string          `json:"time_system"`
	StartTime       string          `json:"start_time"`
	StopTime        string          `json:"stop_time"`
	Lines           []EphemerisLine `json:"ephemeris_lines"`
}

// Header keys as they appear (lower-cased) in a key = value header.
const (
	keyVersion    = "ccsds_oem_vers"
	keyCreation   = "creation_date"
	keyOriginator = "originator"
	keyObjectName = "object_name"
	keyObjectID   = "object_id"
	keyCenter     = "center_name"
	keyRefFrame   = "ref_frame"
	keyTimeSystem = "time_system"
	keyStartTime  = "start_time"
	keyStopTime   = "stop_time"
)

// recordFromHeader builds a record from a string-keyed header map, normalizing
// the timestamp fields. Unknown keys are ignored.
func recordFromHeader(h map[string]string) (*Record, error) {
	rec := &Record{
		CCSDSOEMVersion: h[keyVersion],
		Originator:      h[keyOriginator],
		ObjectName:      h[keyObjectName],
		ObjectID:        h[keyObjectID],
		CenterName:      h[keyCenter],
		RefFrame:        h[keyRefFrame],
		TimeSystem:      h[keyTimeSystem],
	}
	for key, dst := range map[string]*string{
		keyCreation:  &rec.CreationDate,
		keyStartTime: &rec.StartTime,
		keyStopTime:  &rec.StopTime,
	} {
		v, ok := h[key]
		if !ok || v == "" {
			continue
		}
		ts, err := NormalizeTimestamp(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		*dst = ts
	}
	return rec, nil
}

// Validate checks the record invariants: start and stop present, a known
// reference frame, at least one line, six-component state vectors and
// strictly increasing epochs.
func (r *Record) Validate() error {
	if r.StartTime == "" {
		return fmt.Errorf("%w: start_time", ErrMissingField)
	}
	if r.StopTime == "" {
		return fmt.Errorf("%w: stop_time", ErrMissingField)
	}
	if _, ok := KnownFrames[r.RefFrame]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFrame, r.RefFrame)
	}
	if len(r.Lines) == 0 {
		return ErrNoEphemeris
	}
	prev := ""
	for i, l := range r.Lines {
		if len(l.StateVector) != StateVectorSize {
			return fmt.Errorf("line %d (%s): %w, got %d", i, l.Epoch, ErrInvalidStateVector, len(l.StateVector))
		}
		if i > 0 && l.Epoch <= prev {
			return fmt.Errorf("line %d: %w: %s after %s", i, ErrEpochOrder, l.Epoch, prev)
		}
		prev = l.Epoch
	}
	return nil
}

// WithLines returns a copy of the record header carrying the given lines.
func (r *Record) WithLines(lines []EphemerisLine) *Record {
	out := *r
	out.Lines = lines
	return &out
}
