package memory

import (
	"math"
	"testing"
	"time"
)

func TestUsageMultiplier(t *testing.T) {
	if got := usageMultiplier(0); got != usageFloor {
		t.Errorf("never accessed: got %v want %v", got, usageFloor)
	}
	if got := usageMultiplier(1); got != usageMinBoost {
		t.Errorf("first access: got %v want %v", got, usageMinBoost)
	}
	if usageMultiplier(10) <= usageMultiplier(2) {
		t.Error("usage multiplier must grow with access count")
	}
	if got := usageMultiplier(1 << 40); got != usageCap {
		t.Errorf("usage multiplier must cap at %v, got %v", usageCap, got)
	}
}

func TestCompositeScorerWeightedSum(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{
		Tier:         TierCritical,
		Stability:    2.0,
		Title:        "badger transactions",
		AccessCount:  3,
		LastAccessed: now.Add(-24 * time.Hour),
		LastReview:   now.Add(-48 * time.Hour),
	}
	scorer := NewCompositeScorer(DefaultCompositeWeights())

	score, factors := scorer.Score(rec, Candidate{}, "badger transactions", now)

	for _, name := range []string{"temporal", "usage", "importance", "pattern", "citation"} {
		v, ok := factors[name]
		if !ok {
			t.Fatalf("missing factor %q", name)
		}
		if v < 0 || v > 1 {
			t.Errorf("factor %q out of [0,1]: %v", name, v)
		}
	}

	w := DefaultCompositeWeights()
	want := w.Temporal*factors["temporal"] +
		w.Usage*factors["usage"] +
		w.Importance*factors["importance"] +
		w.Pattern*factors["pattern"] +
		w.Citation*factors["citation"]
	if math.Abs(score-want) > 1e-12 {
		t.Errorf("score %v does not match weighted factor sum %v", score, want)
	}
}

func TestCompositeScorerDecayDisabledTierStaysFresh(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{
		Tier:       TierConstitutional,
		Stability:  0.1,
		LastReview: now.Add(-400 * 24 * time.Hour),
	}
	_, factors := NewCompositeScorer(DefaultCompositeWeights()).Score(rec, Candidate{}, "q", now)
	if factors["temporal"] != 1.0 {
		t.Errorf("constitutional temporal factor should be 1.0, got %v", factors["temporal"])
	}
	if factors["importance"] != 1.0 {
		t.Errorf("constitutional importance should normalize to 1.0, got %v", factors["importance"])
	}
}

func TestCompositeScorerDeprecatedImportanceZero(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{Tier: TierDeprecated, Stability: 1.0, CreatedAt: now}
	_, factors := NewCompositeScorer(DefaultCompositeWeights()).Score(rec, Candidate{}, "q", now)
	if factors["importance"] != 0 {
		t.Errorf("deprecated importance should be zero, got %v", factors["importance"])
	}
}

func TestPatternAlignment(t *testing.T) {
	tests := []struct {
		name  string
		rec   *MemoryRecord
		query string
		want  float64
	}{
		{
			name:  "exact title match",
			rec:   &MemoryRecord{Title: "Retry Backoff Policy"},
			query: "retry backoff policy",
			want:  1.0,
		},
		{
			name:  "exact anchor match",
			rec:   &MemoryRecord{Title: "other", AnchorID: "pkg/memory/retry.go"},
			query: "pkg/memory/retry.go",
			want:  0.9,
		},
		{
			name:  "partial term overlap",
			rec:   &MemoryRecord{Title: "badger storage layer", Kind: "decision"},
			query: "badger fusion",
			want:  0.7 * 0.5,
		},
		{
			name:  "short terms skipped",
			rec:   &MemoryRecord{Title: "ab cd"},
			query: "ab cd",
			want:  0,
		},
		{
			name:  "empty query",
			rec:   &MemoryRecord{Title: "anything"},
			query: "   ",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := patternAlignment(tt.rec, tt.query); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("patternAlignment = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCitationRecency(t *testing.T) {
	now := time.Now()

	if got := citationRecency(&MemoryRecord{}, now); got != 0 {
		t.Errorf("never accessed should score 0, got %v", got)
	}

	fresh := citationRecency(&MemoryRecord{LastAccessed: now}, now)
	week := citationRecency(&MemoryRecord{LastAccessed: now.Add(-7 * 24 * time.Hour)}, now)
	if math.Abs(fresh-1.0) > 1e-9 {
		t.Errorf("just-accessed should score ~1.0, got %v", fresh)
	}
	if math.Abs(week-math.Exp(-1)) > 1e-9 {
		t.Errorf("one-week-old access should score ~1/e, got %v", week)
	}
}

func TestLegacyScorerSimilarityClamped(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{Tier: TierNormal, Stability: 1.0, CreatedAt: now}
	scorer := NewLegacyScorer()

	_, high := scorer.Score(rec, Candidate{Score: 5.0}, "q", now)
	if high["similarity"] != 1.0 {
		t.Errorf("similarity should clamp to 1.0, got %v", high["similarity"])
	}
	_, low := scorer.Score(rec, Candidate{Score: -0.5}, "q", now)
	if low["similarity"] != 0 {
		t.Errorf("similarity should clamp to 0, got %v", low["similarity"])
	}
}

func TestLegacyScorerTierBoostOrdering(t *testing.T) {
	now := time.Now()
	cand := Candidate{Score: 0.5}
	scorer := NewLegacyScorer()

	constitutional := &MemoryRecord{Tier: TierConstitutional, Stability: 1.0, CreatedAt: now}
	normal := &MemoryRecord{Tier: TierNormal, Stability: 1.0, CreatedAt: now}

	cScore, _ := scorer.Score(constitutional, cand, "q", now)
	nScore, _ := scorer.Score(normal, cand, "q", now)
	if cScore <= nScore {
		t.Error("constitutional tier must outrank normal with equal similarity")
	}
}

func TestLegacyRecencyFallsBackToCreatedAt(t *testing.T) {
	now := time.Now()
	rec := &MemoryRecord{CreatedAt: now.Add(-30 * 24 * time.Hour)}
	if got := legacyRecency(rec, now); math.Abs(got-math.Exp(-1)) > 1e-9 {
		t.Errorf("30-day-old record should score ~1/e, got %v", got)
	}
}

func TestNewScorerSelection(t *testing.T) {
	if got := NewScorer(ScorerLegacy, DefaultCompositeWeights()).Name(); got != ScorerLegacy {
		t.Errorf("expected legacy scorer, got %q", got)
	}
	if got := NewScorer(ScorerComposite, DefaultCompositeWeights()).Name(); got != ScorerComposite {
		t.Errorf("expected composite scorer, got %q", got)
	}
	if got := NewScorer("unknown", DefaultCompositeWeights()).Name(); got != ScorerComposite {
		t.Errorf("unknown name should fall back to composite, got %q", got)
	}
}
