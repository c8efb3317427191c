package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the debug /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	apiErrors       *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	fetches         *prometheus.CounterVec
	invalidations   *prometheus.CounterVec
}

// CacheStats is a snapshot of query-cache counters, shown in the in-app
// stats view.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Fetches       int64
	FetchErrors   int64
	Invalidations int64
	HitRate       float64
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "splitsmart_request_duration_seconds",
				Help:    "Duration of backend API calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		apiErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitsmart_api_errors_total",
				Help: "Total failed backend API calls.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitsmart_cache_hits_total",
				Help: "Total query-cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitsmart_cache_misses_total",
				Help: "Total query-cache misses.",
			},
			[]string{"cache"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitsmart_fetches_total",
				Help: "Total fetches performed on behalf of the query cache.",
			},
			[]string{"result"},
		),
		invalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "splitsmart_invalidations_total",
				Help: "Total cache entries marked stale, by tag type.",
			},
			[]string{"tag"},
		),
	}
}

// RecordRequestDuration records the duration of a backend API call.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrAPIError increments the failed-call counter for an operation.
func (m *Metrics) IncrAPIError(operation string) {
	m.apiErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrFetch increments the fetch counter with a success/error result label.
func (m *Metrics) IncrFetch(result string) {
	m.fetches.WithLabelValues(result).Inc()
}

// IncrInvalidation increments the invalidation counter for a tag type.
func (m *Metrics) IncrInvalidation(tagType string) {
	m.invalidations.WithLabelValues(tagType).Inc()
}

// GetCacheStats returns a snapshot of the query-cache counters.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) GetCacheStats() CacheStats {
	hits := getCounterValue(m.cacheHits, "query")
	misses := getCounterValue(m.cacheMisses, "query")
	fetches := getCounterValue(m.fetches, "success")
	fetchErrors := getCounterValue(m.fetches, "error")

	var invalidations float64
	for _, tag := range []string{"Groups", "GroupDetails", "GroupBalances", "GroupExpenses"} {
		invalidations += getCounterValue(m.invalidations, tag)
	}

	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return CacheStats{
		Hits:          int64(hits),
		Misses:        int64(misses),
		Fetches:       int64(fetches),
		FetchErrors:   int64(fetchErrors),
		Invalidations: int64(invalidations),
		HitRate:       hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
