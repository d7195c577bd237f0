// Package metrics provides Prometheus metrics for the Recap service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	EventsAppendedTotal prometheus.Counter
	EventsClaimedTotal  prometheus.Counter
	FreezesTotal        *prometheus.CounterVec
	FreezeDuration      prometheus.Histogram
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EventsAppendedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recap_events_appended_total",
				Help: "Total number of activity events appended.",
			},
		),
		EventsClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recap_events_claimed_total",
				Help: "Total number of events claimed by freezes.",
			},
		),
		FreezesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_freezes_total",
				Help: "Total number of freeze attempts by result.",
			},
			[]string{"result"},
		),
		FreezeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recap_freeze_duration_seconds",
				Help:    "Duration of freeze operations.",
				Buckets: prometheus.DefBuckets,
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recap_http_requests_total",
				Help: "Total HTTP requests by route and status code.",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recap_http_request_duration_seconds",
				Help:    "HTTP request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EventsAppendedTotal,
		m.EventsClaimedTotal,
		m.FreezesTotal,
		m.FreezeDuration,
		m.RequestsTotal,
		m.RequestDuration,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
