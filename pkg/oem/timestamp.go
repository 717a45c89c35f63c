package oem

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the stored timestamp form: UTC, zero padded, fixed
// microsecond precision, no zone suffix. Lexicographic order equals temporal
// order for every value in this layout.
const TimestampLayout = "2006-01-02T15:04:05.000000"

var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-002T15:04:05Z07:00",
	"2006-002T15:04:05",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts CCSDS calendar and day-of-year forms, with or
// without fractional seconds and a trailing Z, and the "YYYY-MM-DD hh:mm:ss
// UTC" form used by fixed-column headers.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
}

// NormalizeTimestamp converts s to TimestampLayout.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseDayOfYearEpoch decodes the compact epoch YYYYDDDhhmmss[.ffffff]: a
// four digit year, three digit day of year and time of day.
func ParseDayOfYearEpoch(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 13 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
	}
	ints := make([]int, 0, 5)
	for _, span := range [][2]int{{0, 4}, {4, 7}, {7, 9}, {9, 11}} {
		n, err := strconv.Atoi(s[span[0]:span[1]])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
		}
		ints = append(ints, n)
	}
	sec, err := strconv.ParseFloat(s[11:], 64)
	if err != nil || sec < 0 || sec >= 61 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
	}
	year, doy, hour, minute := ints[0], ints[1], ints[2], ints[3]
	if doy < 1 || doy > 366 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
	}
	whole := int(sec)
	nanos := int((sec-float64(whole))*1e9 + 0.5)
	t := time.Date(year, time.January, 1, hour, minute, whole, nanos, time.UTC)
	return t.AddDate(0, 0, doy-1), nil
}
