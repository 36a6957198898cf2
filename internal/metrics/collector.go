// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "navaccel"

// Prefetch kinds
const (
	KindRoute = "route"
	KindData  = "data"
)

// Prefetch outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector holds the prometheus series for the acceleration layer.
// A nil *Collector is valid and records nothing.
type Collector struct {
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheExpirations  prometheus.Counter
	cacheEvictions    prometheus.Counter
	cacheSizeFallback prometheus.Counter
	cacheBytes        prometheus.Gauge

	prefetchAttempts *prometheus.CounterVec
	prefetchSkipped  *prometheus.CounterVec
	prefetchRetries  prometheus.Counter
	prefetchDuration *prometheus.HistogramVec

	predictions     *prometheus.CounterVec
	dataFetchErrors *prometheus.CounterVec
}

// NewCollector registers all series with reg. Pass prometheus.NewRegistry()
// in tests to keep registrations isolated.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)

	return &Collector{
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache lookups that found a live entry",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache lookups that found nothing",
		}),
		cacheExpirations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expirations_total",
			Help:      "Total number of entries dropped lazily after their TTL",
		}),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of entries removed by LRU eviction",
		}),
		cacheSizeFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_size_estimate_fallbacks_total",
			Help:      "Total number of values whose size could not be estimated",
		}),
		cacheBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Estimated bytes held by the cache",
		}),
		prefetchAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_attempts_total",
			Help:      "Total number of prefetch attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		prefetchSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_skipped_total",
			Help:      "Total number of prefetch requests skipped by kind and reason",
		}, []string{"kind", "reason"}),
		prefetchRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prefetch_retries_total",
			Help:      "Total number of route prefetch retries scheduled",
		}),
		prefetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prefetch_duration_seconds",
			Help:      "Prefetch attempt duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of predicted routes by priority",
		}, []string{"priority"}),
		dataFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_fetch_errors_total",
			Help:      "Total number of failed data fetcher calls by fetcher key",
		}, []string{"key"}),
	}
}

// CacheHit records a cache hit
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// CacheMiss records a cache miss
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// CacheExpired records a lazily expired entry
func (c *Collector) CacheExpired() {
	if c == nil {
		return
	}
	c.cacheExpirations.Inc()
}

// CacheEvicted records n evicted entries
func (c *Collector) CacheEvicted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheEvictions.Add(float64(n))
}

// CacheSizeFallback records a size estimate that fell back to the default
func (c *Collector) CacheSizeFallback() {
	if c == nil {
		return
	}
	c.cacheSizeFallback.Inc()
}

// CacheBytes sets the current size estimate
func (c *Collector) CacheBytes(n int64) {
	if c == nil {
		return
	}
	c.cacheBytes.Set(float64(n))
}

// PrefetchAttempt records one finished attempt
func (c *Collector) PrefetchAttempt(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.prefetchAttempts.WithLabelValues(kind, outcome).Inc()
	c.prefetchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// PrefetchSkipped records a request that did no work
func (c *Collector) PrefetchSkipped(kind, reason string) {
	if c == nil {
		return
	}
	c.prefetchSkipped.WithLabelValues(kind, reason).Inc()
}

// PrefetchRetry records a scheduled retry
func (c *Collector) PrefetchRetry() {
	if c == nil {
		return
	}
	c.prefetchRetries.Inc()
}

// Prediction records one predicted route
func (c *Collector) Prediction(priority string) {
	if c == nil {
		return
	}
	c.predictions.WithLabelValues(priority).Inc()
}

// DataFetchError records a failed fetcher call
func (c *Collector) DataFetchError(key string) {
	if c == nil {
		return
	}
	c.dataFetchErrors.WithLabelValues(key).Inc()
}
