// Package metrics exports matching and enrollment metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/faceauth/internal/facematch"
)

const namespace = "faceauth"

// Match outcomes.
const (
	OutcomeMatched = "matched"
	OutcomeUnknown = "unknown"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Recorder records metrics for the matcher, the enrollment policy and the
// reference store. It implements database.StoreObserver. A nil Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	matches      *prometheus.CounterVec
	matchLatency prometheus.Histogram
	skipped      prometheus.Counter
	enrollments  *prometheus.CounterVec
	suggestions  prometheus.Counter
	identities   prometheus.Gauge
	references   prometheus.Gauge
	loadIssues   prometheus.Counter
}

// New creates a Recorder on its own registry, including Go runtime and
// process collectors.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{registry: registry}

	r.matches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "requests_total",
			Help:      "Total number of match requests by outcome",
		},
		[]string{"outcome"},
	)

	r.matchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "latency_seconds",
			Help:      "Match latency in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	r.skipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "match",
			Name:      "skipped_references_total",
			Help:      "References excluded from matching for dimension mismatch",
		},
	)

	r.enrollments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrollment",
			Name:      "decisions_total",
			Help:      "Total number of enrollment decisions by action",
		},
		[]string{"action"},
	)

	r.suggestions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "suggestions",
			Name:      "requests_total",
			Help:      "Total number of suggestion rankings",
		},
	)

	r.identities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "identities",
			Help:      "Number of enrolled identities",
		},
	)

	r.references = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "references",
			Help:      "Number of stored reference embeddings",
		},
	)

	r.loadIssues = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "load_issues_total",
			Help:      "Persisted entries excluded while loading",
		},
	)

	registry.MustRegister(
		r.matches,
		r.matchLatency,
		r.skipped,
		r.enrollments,
		r.suggestions,
		r.identities,
		r.references,
		r.loadIssues,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// RecordMatch records one match call.
func (r *Recorder) RecordMatch(res facematch.MatchResult, err error, latency time.Duration) {
	if r == nil {
		return
	}
	r.matchLatency.Observe(latency.Seconds())
	switch {
	case err != nil:
		r.matches.WithLabelValues(OutcomeInvalid).Inc()
	case res.Matched():
		r.matches.WithLabelValues(OutcomeMatched).Inc()
	default:
		r.matches.WithLabelValues(OutcomeUnknown).Inc()
	}
	if res.Skipped > 0 {
		r.skipped.Add(float64(res.Skipped))
	}
}

// RecordMatchError records a match that failed for a system reason.
func (r *Recorder) RecordMatchError() {
	if r == nil {
		return
	}
	r.matches.WithLabelValues(OutcomeError).Inc()
}

// RecordEnrollment records one enrollment decision, or an error.
func (r *Recorder) RecordEnrollment(d facematch.EnrollmentDecision, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.enrollments.WithLabelValues(OutcomeError).Inc()
		return
	}
	r.enrollments.WithLabelValues(string(d.Action)).Inc()
}

// RecordSuggestions records one suggestion ranking.
func (r *Recorder) RecordSuggestions() {
	if r == nil {
		return
	}
	r.suggestions.Inc()
}

// SnapshotPublished updates the store gauges.
func (r *Recorder) SnapshotPublished(g *facematch.Gallery) {
	if r == nil {
		return
	}
	r.identities.Set(float64(g.Len()))
	r.references.Set(float64(g.Total()))
}

// LoadIssues counts entries excluded by a load.
func (r *Recorder) LoadIssues(n int) {
	if r == nil {
		return
	}
	r.loadIssues.Add(float64(n))
}

// Handler returns the /metrics handler.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
