package memory

import (
	"math"
	"time"
)

// FSRS power-law decay parameters.
const (
	fsrsFactor = 0.235
	fsrsPower  = -0.5
)

// Retrievability computes the FSRS-style freshness of a record at time now:
// R = (1 + 0.235 * t/S)^(-0.5), with t in days since last review (falling
// back to creation time) and S the record's stability. Tiers with decay
// disabled always yield 1.0.
func Retrievability(rec *MemoryRecord, now time.Time) float64 {
	if !rec.Tier.Traits().DecayEnabled {
		return 1.0
	}

	stability := clampStability(rec.Stability)
	elapsed := now.Sub(rec.reviewedAt())
	if elapsed < 0 {
		elapsed = 0
	}
	days := elapsed.Hours() / 24.0

	return math.Pow(1.0+fsrsFactor*days/stability, fsrsPower)
}
