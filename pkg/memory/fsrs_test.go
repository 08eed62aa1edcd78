package memory

import (
	"math"
	"testing"
	"time"
)

func TestRetrievabilityFreshRecord(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{Tier: TierNormal, Stability: 1.0, LastReview: now}
	if got := Retrievability(rec, now); got != 1.0 {
		t.Errorf("zero elapsed time should be fully retrievable, got %v", got)
	}
}

func TestRetrievabilityDecayCurve(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{
		Tier:       TierNormal,
		Stability:  1.0,
		LastReview: now.Add(-10 * 24 * time.Hour),
	}
	want := math.Pow(1.0+0.235*10.0, -0.5)
	if got := Retrievability(rec, now); math.Abs(got-want) > 1e-12 {
		t.Errorf("10-day decay: got %v want %v", got, want)
	}
}

func TestRetrievabilityHigherStabilityDecaysSlower(t *testing.T) {
	now := time.Now()
	reviewed := now.Add(-30 * 24 * time.Hour)
	weak := &MemoryRecord{Tier: TierNormal, Stability: 1.0, LastReview: reviewed}
	strong := &MemoryRecord{Tier: TierNormal, Stability: 50.0, LastReview: reviewed}

	if Retrievability(strong, now) <= Retrievability(weak, now) {
		t.Error("higher stability must decay slower")
	}
}

func TestRetrievabilityDecayDisabledTiers(t *testing.T) {
	now := time.Now()
	old := now.Add(-365 * 24 * time.Hour)

	for _, tier := range []Tier{TierConstitutional, TierCritical, TierImportant, TierDeprecated} {
		rec := &MemoryRecord{Tier: tier, Stability: 0.1, LastReview: old}
		if got := Retrievability(rec, now); got != 1.0 {
			t.Errorf("tier %s: decay disabled should yield 1.0, got %v", tier, got)
		}
	}
}

func TestRetrievabilityClampsStability(t *testing.T) {
	now := time.Now()
	reviewed := now.Add(-5 * 24 * time.Hour)

	zero := &MemoryRecord{Tier: TierNormal, Stability: 0, LastReview: reviewed}
	floor := &MemoryRecord{Tier: TierNormal, Stability: MinStability, LastReview: reviewed}
	if Retrievability(zero, now) != Retrievability(floor, now) {
		t.Error("stability below the floor should clamp, not diverge")
	}

	huge := &MemoryRecord{Tier: TierNormal, Stability: 1e9, LastReview: reviewed}
	ceil := &MemoryRecord{Tier: TierNormal, Stability: MaxStability, LastReview: reviewed}
	if Retrievability(huge, now) != Retrievability(ceil, now) {
		t.Error("stability above the ceiling should clamp, not diverge")
	}
}

func TestRetrievabilityFallsBackToCreatedAt(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{
		Tier:      TierTemporary,
		Stability: 1.0,
		CreatedAt: now.Add(-3 * 24 * time.Hour),
	}
	want := math.Pow(1.0+0.235*3.0, -0.5)
	if got := Retrievability(rec, now); math.Abs(got-want) > 1e-9 {
		t.Errorf("created-at fallback: got %v want %v", got, want)
	}
}

func TestRetrievabilityFutureReviewClampsToFresh(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{Tier: TierNormal, Stability: 1.0, LastReview: now.Add(time.Hour)}
	if got := Retrievability(rec, now); got != 1.0 {
		t.Errorf("clock skew should clamp elapsed to zero, got %v", got)
	}
}
