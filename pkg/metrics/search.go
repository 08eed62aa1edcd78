package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initSearchMetrics initializes search-related metrics.
func (m *Manager) initSearchMetrics(cfg Config) {
	m.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_searches_total",
			Help: "Total number of searches by mode (hybrid or keyword)",
		},
		[]string{"mode"},
	)

	m.searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engram_search_duration_seconds",
			Help:    "Search latency in seconds",
			Buckets: cfg.SearchDurationBuckets,
		},
		[]string{"mode"},
	)

	m.recordsIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_records_indexed_total",
			Help: "Total number of records indexed by embedding status",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(m.searches)
	m.registry.MustRegister(m.searchDuration)
	m.registry.MustRegister(m.recordsIndexed)
}

// RecordSearch records a completed search and its latency.
func (m *Manager) RecordSearch(mode string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.searches.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordIndexed records a newly indexed record by its embedding status.
func (m *Manager) RecordIndexed(status string) {
	if !m.enabled {
		return
	}
	m.recordsIndexed.WithLabelValues(status).Inc()
}
