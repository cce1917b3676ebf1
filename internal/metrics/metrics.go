// Package metrics exposes the service's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	locations   *prometheus.CounterVec
	alerts      *prometheus.CounterVec
	suppressed  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	dropped     prometheus.Counter
	ingest      prometheus.Histogram
	scores      prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		locations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_locations_ingested_total",
			Help: "Location updates accepted, by source.",
		}, []string{"source"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alerts_created_total",
			Help: "Alerts created, by type and severity.",
		}, []string{"type", "severity"}),
		suppressed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_alerts_suppressed_total",
			Help: "Candidate alerts dropped as duplicates of an open alert.",
		}, []string{"type"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_rate_limited_total",
			Help: "Requests rejected by the engine limiters.",
		}, []string{"limiter"}),
		dispatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_dispatch_total",
			Help: "Notification deliveries, by channel and outcome.",
		}, []string{"channel", "status"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "safety_dispatch_queue_dropped_total",
			Help: "Notifications dropped because the queue was full.",
		}),
		ingest: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safety_ingest_duration_seconds",
			Help:    "Time spent ingesting one location update.",
			Buckets: prometheus.DefBuckets,
		}),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "safety_score",
			Help:    "Distribution of computed safety scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
}

func (m *Metrics) LocationIngested(source string) {
	if m == nil {
		return
	}
	m.locations.WithLabelValues(source).Inc()
}

func (m *Metrics) AlertCreated(kind, severity string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind, severity).Inc()
}

func (m *Metrics) AlertSuppressed(kind string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(kind).Inc()
}

func (m *Metrics) RateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *Metrics) Dispatched(channel, status string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) QueueDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) ObserveIngest(d time.Duration) {
	if m == nil {
		return
	}
	m.ingest.Observe(d.Seconds())
}

func (m *Metrics) ObserveScore(score int) {
	if m == nil {
		return
	}
	m.scores.Observe(float64(score))
}
