package api

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP series for the API
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	RateLimitHits    prometheus.Counter
}

// NewMetrics registers the HTTP series with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "navaccel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "navaccel_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RateLimitHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "navaccel_http_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
		),
	}
}

// IncrementRequest increments the request counter
func (m *Metrics) IncrementRequest(method, path string, status int) {
	m.RequestCounter.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
}

// RecordLatency records request latency
func (m *Metrics) RecordLatency(method, path string, seconds float64) {
	m.LatencyHistogram.WithLabelValues(method, path).Observe(seconds)
}

// IncrementRateLimitHit increments rate limit hit counter
func (m *Metrics) IncrementRateLimitHit() {
	m.RateLimitHits.Inc()
}
