package oem

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"calendar", "2020-11-24T05:14:06", "2020-11-24T05:14:06.000000"},
		{"calendar fraction", "2020-11-24T05:14:06.5", "2020-11-24T05:14:06.500000"},
		{"calendar zulu", "2020-11-24T05:14:06.123456Z", "2020-11-24T05:14:06.123456"},
		{"day of year", "2020-329T05:14:06.250", "2020-11-24T05:14:06.250000"},
		{"space separated zone", "2020-11-24 05:14:06 UTC", "2020-11-24T05:14:06.000000"},
		{"surrounding space", "  2020-11-24 05:14:06 UTC\n", "2020-11-24T05:14:06.000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTimestamp(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTimestampRejectsGarbage(t *testing.T) {
	_, err := NormalizeTimestamp("yesterday")
	assert.ErrorIs(t, err, ErrTimestamp)
}

func TestParseDayOfYearEpoch(t *testing.T) {
	got, err := ParseDayOfYearEpoch("2020329051406.250000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, time.November, 24, 5, 14, 6, 250000000, time.UTC), got)

	got, err = ParseDayOfYearEpoch("2021001000000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestNormalizedTimestampsSortLexicographically(t *testing.T) {
	inputs := []string{
		"2020-11-24T10:00:00",
		"2020-11-24T09:59:59.999",
		"2019-12-31 23:59:59 UTC",
		"2020-329T00:00:00.000001",
	}
	var norm []string
	var times []time.Time
	for _, in := range inputs {
		s, err := NormalizeTimestamp(in)
		require.NoError(t, err)
		norm = append(norm, s)
		ts, err := ParseTimestamp(in)
		require.NoError(t, err)
		times = append(times, ts)
	}
	sort.Strings(norm)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := range times {
		assert.Equal(t, FormatTimestamp(times[i]), norm[i])
	}
}
