package metrics

import "github.com/prometheus/client_golang/prometheus"

// initCorrectionMetrics initializes correction ledger metrics.
func (m *Manager) initCorrectionMetrics(cfg Config) {
	m.corrections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engram_corrections_total",
			Help: "Total number of recorded corrections by type",
		},
		[]string{"type"},
	)

	m.correctionUndos = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engram_correction_undos_total",
			Help: "Total number of undone corrections",
		},
	)

	m.registry.MustRegister(m.corrections)
	m.registry.MustRegister(m.correctionUndos)
}

// RecordCorrection records a correction event by type.
func (m *Manager) RecordCorrection(correctionType string) {
	if !m.enabled {
		return
	}
	m.corrections.WithLabelValues(correctionType).Inc()
}

// RecordCorrectionUndo records an undone correction.
func (m *Manager) RecordCorrectionUndo() {
	if !m.enabled {
		return
	}
	m.correctionUndos.Inc()
}
