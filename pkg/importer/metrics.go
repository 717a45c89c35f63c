package importer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts import activity. Register it once with a registry; a nil
// *Metrics records nothing.
type Metrics struct {
	artifacts    *prometheus.CounterVec
	records      *prometheus.CounterVec
	passDuration *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
}

// Artifact results.
const (
	artifactImported = "imported"
	artifactSkipped  = "skipped"
	artifactAbsent   = "absent"
	artifactFailed   = "failed"
)

// NewMetrics creates the import metrics and registers them with reg when it
// is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Subsystem: "import",
			Name:      "artifacts_total",
			Help:      "Archive artifacts processed, by source and result",
		}, []string{"source", "result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcade",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Parsed ephemeris records, by source and supersession outcome",
		}, []string{"source", "outcome"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arcade",
			Subsystem: "import",
			Name:      "source_duration_seconds",
			Help:      "Time spent importing one source",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"source"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "arcade",
			Subsystem: "import",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last source run without failed artifacts",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.artifacts, m.records, m.passDuration, m.lastSuccess)
	}
	return m
}

func (m *Metrics) artifact(source, result string) {
	if m == nil {
		return
	}
	m.artifacts.WithLabelValues(source, result).Inc()
}

func (m *Metrics) record(source string, outcome Outcome) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(source, string(outcome)).Inc()
}

func (m *Metrics) sourceDone(source string, seconds float64, failed int, unixNow float64) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(source).Observe(seconds)
	if failed == 0 {
		m.lastSuccess.WithLabelValues(source).Set(unixNow)
	}
}
