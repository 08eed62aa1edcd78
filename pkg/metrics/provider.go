package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initProviderMetrics initializes embedding provider metrics.
func (m *Manager) initProviderMetrics(cfg Config) {
	m.fallbackEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_provider_fallbacks_total",
			Help: "Total number of provider fallback events by tier and failure class",
		},
		[]string{"tier", "class"},
	)

	m.activeTier = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engram_provider_active_tier",
			Help: "Active provider tier (0=primary, 1=secondary, 2=tertiary)",
		},
	)

	m.embedDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engram_embed_duration_seconds",
			Help:    "Embedding call latency in seconds",
			Buckets: cfg.EmbedDurationBuckets,
		},
	)

	m.registry.MustRegister(m.fallbackEvents)
	m.registry.MustRegister(m.activeTier)
	m.registry.MustRegister(m.embedDuration)
}

// RecordFallback records a provider fallback event.
func (m *Manager) RecordFallback(tier, class string) {
	if !m.enabled {
		return
	}
	m.fallbackEvents.WithLabelValues(tier, class).Inc()
}

// SetActiveTier records the currently active provider tier.
func (m *Manager) SetActiveTier(tier int) {
	if !m.enabled {
		return
	}
	m.activeTier.Set(float64(tier))
}

// RecordEmbedDuration records the latency of one embedding call.
func (m *Manager) RecordEmbedDuration(duration time.Duration) {
	if !m.enabled {
		return
	}
	m.embedDuration.Observe(duration.Seconds())
}
