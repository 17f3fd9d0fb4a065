// Package metrics provides Prometheus metrics for the insight service.
//
// A nil *Metrics is valid and records nothing, so components can take one
// as an optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "insight"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	cacheWrites    *prometheus.CounterVec
	rerankOutcomes *prometheus.CounterVec
	rerankDuration prometheus.Histogram
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	personas       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_lookups_total",
				Help:      "Search cache lookups by status (hit, miss, error)",
			},
			[]string{"status"},
		),
		cacheWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_cache_writes_total",
				Help:      "Search cache writes by status",
			},
			[]string{"status"},
		),
		rerankOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rerank_outcomes_total",
				Help:      "Rerank calls by outcome (reranked or fallback reason)",
			},
			[]string{"outcome"},
		),
		rerankDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rerank_duration_seconds",
				Help:      "Duration of cross-encoder scoring in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
		),
		searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Hybrid searches by status",
			},
			[]string{"status"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end hybrid search duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		personas: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "personas_generated_total",
				Help:      "Synthetic personas generated",
			},
		),
	}

	reg.MustRegister(
		m.cacheLookups,
		m.cacheWrites,
		m.rerankOutcomes,
		m.rerankDuration,
		m.searches,
		m.searchDuration,
		m.personas,
	)
	return m
}

// CacheLookup counts a cache lookup.
func (m *Metrics) CacheLookup(status string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(status).Inc()
}

// CacheWrite counts a cache write.
func (m *Metrics) CacheWrite(status string) {
	if m == nil {
		return
	}
	m.cacheWrites.WithLabelValues(status).Inc()
}

// Rerank records a rerank outcome and how long scoring took.
func (m *Metrics) Rerank(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.rerankOutcomes.WithLabelValues(outcome).Inc()
	m.rerankDuration.Observe(d.Seconds())
}

// Search records a completed search.
func (m *Metrics) Search(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// PersonasGenerated adds n generated personas.
func (m *Metrics) PersonasGenerated(n int) {
	if m == nil {
		return
	}
	m.personas.Add(float64(n))
}
