package oem

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Constants supplied for fixed-column ephemerides, which do not carry them.
const (
	FixedColumnOriginator = "Starlink"
	FixedColumnCenter     = "EARTH"
	FixedColumnFrame      = "EME2000"
	FixedColumnTimeSystem = "UTC"
)

// Column ranges of the fixed-column header.
const (
	creationCol   = 8
	startColFrom  = 16
	startColTo    = 39
	stopColFrom   = 55
	stopColTo     = 78
	stateLineStep = 4
)

// ParseFixedColumn reads a fixed-column ephemeris:
//
//	line 0: creation timestamp from column 8
//	line 1: start time in columns [16:39], stop time in [55:78]
//	every line whose index is a multiple of 4: compact epoch and six floats
//
// The first blank line ends the message. Object name and id are not part of
// the content; the caller derives them from the member name.
func ParseFixedColumn(r io.Reader) (*Record, error) {
	rec := &Record{
		Originator: FixedColumnOriginator,
		CenterName: FixedColumnCenter,
		RefFrame:   FixedColumnFrame,
		TimeSystem: FixedColumnTimeSystem,
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for idx := 0; sc.Scan(); idx++ {
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			break
		}
		switch {
		case idx == 0:
			if len(raw) <= creationCol {
				return nil, lineError(idx+1, fmt.Errorf("%w: creation header too short", ErrMalformedLine))
			}
			ts, err := NormalizeTimestamp(raw[creationCol:])
			if err != nil {
				return nil, lineError(idx+1, err)
			}
			rec.CreationDate = ts
		case idx == 1:
			if len(raw) < stopColTo {
				return nil, lineError(idx+1, fmt.Errorf("%w: span header too short", ErrMalformedLine))
			}
			start, err := NormalizeTimestamp(raw[startColFrom:startColTo])
			if err != nil {
				return nil, lineError(idx+1, err)
			}
			stop, err := NormalizeTimestamp(raw[stopColFrom:stopColTo])
			if err != nil {
				return nil, lineError(idx+1, err)
			}
			rec.StartTime, rec.StopTime = start, stop
		case idx%stateLineStep == 0:
			el, err := parseCompactLine(raw)
			if err != nil {
				return nil, lineError(idx+1, err)
			}
			rec.Lines = append(rec.Lines, el)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixed-column ephemeris: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseCompactLine(line string) (EphemerisLine, error) {
	fields := strings.Fields(line)
	if len(fields) != StateVectorSize+1 {
		return EphemerisLine{}, fmt.Errorf("%w: got %d values", ErrInvalidStateVector, len(fields)-1)
	}
	t, err := ParseDayOfYearEpoch(fields[0])
	if err != nil {
		return EphemerisLine{}, err
	}
	sv, err := parseFloats(fields[1:])
	if err != nil {
		return EphemerisLine{}, err
	}
	return EphemerisLine{Epoch: FormatTimestamp(t), StateVector: sv}, nil
}
