package metrics

import "github.com/prometheus/client_golang/prometheus"

// initRetryMetrics initializes embedding retry queue metrics.
func (m *Manager) initRetryMetrics(cfg Config) {
	m.retryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_retry_attempts_total",
			Help: "Total number of embedding retry attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.retryQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engram_retry_queue_depth",
			Help: "Number of records currently awaiting embedding",
		},
	)

	m.registry.MustRegister(m.retryAttempts)
	m.registry.MustRegister(m.retryQueueSize)
}

// RecordRetryAttempt records one retry attempt outcome (embedded, retry, failed).
func (m *Manager) RecordRetryAttempt(outcome string) {
	if !m.enabled {
		return
	}
	m.retryAttempts.WithLabelValues(outcome).Inc()
}

// SetRetryQueueDepth records the number of records awaiting embedding.
func (m *Manager) SetRetryQueueDepth(depth int) {
	if !m.enabled {
		return
	}
	m.retryQueueSize.Set(float64(depth))
}
