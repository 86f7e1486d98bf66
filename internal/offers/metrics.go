package offers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// cacheHits tracks cache hits by the state the entry was found in.
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offers_cache_hits_total",
		Help: "Total number of offer cache hits by entry state",
	}, []string{"state"})

	// cacheMisses tracks lookups that dispatched a fresh fetch.
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offers_cache_misses_total",
		Help: "Total number of offer cache misses",
	})

	// cacheEvictions tracks LRU evictions.
	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offers_cache_evictions_total",
		Help: "Total number of offer cache entries evicted",
	})

	// fetchDuration tracks the time taken by backend offer fetches.
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offers_fetch_duration_seconds",
		Help:    "Time taken to fetch offers from the backend",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	})

	// fetchErrors tracks failed backend fetches.
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offers_fetch_errors_total",
		Help: "Total number of failed offer fetches",
	})

	// selectionsEmpty tracks bundles where no purchasable offer survived.
	selectionsEmpty = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offers_selection_empty_total",
		Help: "Total number of resolved bundles with no purchasable offer",
	})
)

// MetricsRecorder records offer cache and fetch metrics.
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder.
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordCacheHit records a cache hit for an entry in the given state.
func (m *MetricsRecorder) RecordCacheHit(state string) {
	cacheHits.WithLabelValues(state).Inc()
}

// RecordCacheMiss records a lookup that started a fetch.
func (m *MetricsRecorder) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordEviction records an LRU eviction.
func (m *MetricsRecorder) RecordEviction() {
	cacheEvictions.Inc()
}

// RecordFetch records one backend fetch.
func (m *MetricsRecorder) RecordFetch(durationSeconds float64, success bool) {
	fetchDuration.Observe(durationSeconds)
	if !success {
		fetchErrors.Inc()
	}
}

// RecordEmptySelection records a bundle that yielded no purchasable offer.
func (m *MetricsRecorder) RecordEmptySelection() {
	selectionsEmpty.Inc()
}
