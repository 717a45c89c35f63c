package oem

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateVector = errors.New("state vector must have exactly 6 components")
	ErrUnknownFrame       = errors.New("unknown reference frame")
	ErrMissingField       = errors.New("missing required field")
	ErrMalformedLine      = errors.New("malformed line")
	ErrEpochOrder         = errors.New("epochs are not strictly increasing")
	ErrTimestamp          = errors.New("unrecognized timestamp")
	ErrNoEphemeris        = errors.New("record has no ephemeris lines")
)

// ParseError reports the 1-based input line a parse failure occurred on.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func lineError(n int, err error) error {
	return &ParseError{Line: n, Err: err}
}
