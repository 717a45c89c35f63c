package oem

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type section int

const (
	sectionHeader section = iota
	sectionMeta
	sectionEphemeris
	sectionCovariance
)

const maxLineSize = 1024 * 1024

// ParseCCSDS reads a key/value plus data-section ephemeris message.
//
// key = value lines populate the header in any section. META_START and
// META_STOP move through the metadata block into the ephemeris data, where
// each line is an epoch followed by six floats. The line whose epoch equals
// STOP_TIME is the last one read: covariance data after it is never parsed.
func ParseCCSDS(r io.Reader) (*Record, error) {
	header := make(map[string]string)
	var lines []EphemerisLine
	stop := ""
	state := sectionHeader

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for state != sectionCovariance && sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "COMMENT"):
			continue
		case strings.Contains(line, "="):
			k, v, _ := strings.Cut(line, "=")
			header[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		case strings.HasPrefix(line, "META_START"):
			state = sectionMeta
		case strings.HasPrefix(line, "META_STOP"):
			state = sectionEphemeris
		case strings.HasPrefix(line, "COVARIANCE_START"):
			state = sectionCovariance
		case state == sectionEphemeris:
			if stop == "" {
				raw, ok := header[keyStopTime]
				if !ok || raw == "" {
					return nil, lineError(n, fmt.Errorf("%w: stop_time before ephemeris data", ErrMissingField))
				}
				ts, err := NormalizeTimestamp(raw)
				if err != nil {
					return nil, lineError(n, err)
				}
				stop = ts
			}
			el, err := parseDataLine(line)
			if err != nil {
				return nil, lineError(n, err)
			}
			lines = append(lines, el)
			if el.Epoch == stop {
				state = sectionCovariance
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ephemeris message: %w", err)
	}

	rec, err := recordFromHeader(header)
	if err != nil {
		return nil, err
	}
	rec.Lines = lines
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// parseDataLine splits "epoch x y z vx vy vz" into an EphemerisLine.
func parseDataLine(line string) (EphemerisLine, error) {
	fields := strings.Fields(line)
	if len(fields) != StateVectorSize+1 {
		return EphemerisLine{}, fmt.Errorf("%w: got %d values", ErrInvalidStateVector, len(fields)-1)
	}
	epoch, err := NormalizeTimestamp(fields[0])
	if err != nil {
		return EphemerisLine{}, err
	}
	sv, err := parseFloats(fields[1:])
	if err != nil {
		return EphemerisLine{}, err
	}
	return EphemerisLine{Epoch: epoch, StateVector: sv}, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrMalformedLine, f)
		}
		out[i] = v
	}
	return out, nil
}
