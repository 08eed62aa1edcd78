package memory

import (
	"math"
	"strings"
	"time"
)

// FactorScores is the per-factor breakdown attached to a scored result.
type FactorScores map[string]float64

// Scorer turns a fused candidate plus its stored record into one final
// relevance score. Two named strategies exist behind this interface,
// selected by configuration.
type Scorer interface {
	Name() string
	Score(rec *MemoryRecord, cand Candidate, query string, now time.Time) (float64, FactorScores)
}

// ScorerComposite and ScorerLegacy are the configuration names of the two
// scoring strategies.
const (
	ScorerComposite = "composite"
	ScorerLegacy    = "legacy"
)

// CompositeWeights holds the five composite factor weights. They must sum
// to 1.0 (enforced by config validation).
type CompositeWeights struct {
	Temporal   float64
	Usage      float64
	Importance float64
	Pattern    float64
	Citation   float64
}

// DefaultCompositeWeights returns the standard factor weighting.
func DefaultCompositeWeights() CompositeWeights {
	return CompositeWeights{
		Temporal:   0.25,
		Usage:      0.15,
		Importance: 0.25,
		Pattern:    0.20,
		Citation:   0.15,
	}
}

// Usage factor parameters: a record that has never been accessed sits at
// the floor multiplier; the first access jumps it to the minimum boost, and
// further accesses grow it logarithmically up to the cap.
const (
	usageFloor    = 1.0
	usageMinBoost = 1.5
	usageCap      = 2.0
	usageLogScale = 0.1
)

func usageMultiplier(accessCount int64) float64 {
	if accessCount <= 0 {
		return usageFloor
	}
	boost := usageMinBoost + usageLogScale*math.Log1p(float64(accessCount-1))
	if boost > usageCap {
		boost = usageCap
	}
	return boost
}

// Citation recency half-life style constant: one week of inactivity roughly
// divides the citation factor by e.
const citationDecayDays = 7.0

// maxTierValue normalizes the importance factor; constitutional carries the
// largest tier value.
var maxTierValue = TierConstitutional.Traits().Value

// CompositeScorer is the default five-factor strategy.
type CompositeScorer struct {
	weights CompositeWeights
}

// NewCompositeScorer creates the five-factor scorer.
func NewCompositeScorer(weights CompositeWeights) *CompositeScorer {
	return &CompositeScorer{weights: weights}
}

func (s *CompositeScorer) Name() string { return ScorerComposite }

// Score combines temporal, usage, importance, pattern and citation factors
// into the weighted sum. All factors are normalized into [0, 1] first.
func (s *CompositeScorer) Score(rec *MemoryRecord, cand Candidate, query string, now time.Time) (float64, FactorScores) {
	temporal := Retrievability(rec, now)
	usage := usageMultiplier(rec.AccessCount) / usageCap
	importance := rec.Tier.Traits().Value / maxTierValue
	pattern := patternAlignment(rec, query)
	citation := citationRecency(rec, now)

	factors := FactorScores{
		"temporal":   temporal,
		"usage":      usage,
		"importance": importance,
		"pattern":    pattern,
		"citation":   citation,
	}

	score := s.weights.Temporal*temporal +
		s.weights.Usage*usage +
		s.weights.Importance*importance +
		s.weights.Pattern*pattern +
		s.weights.Citation*citation

	return score, factors
}

// patternAlignment measures how well the query matches the record's title,
// anchor id and kind. Exact matches dominate; substring overlap of the
// longer query terms scores partially.
func patternAlignment(rec *MemoryRecord, query string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return 0
	}

	title := strings.ToLower(rec.Title)
	anchor := strings.ToLower(rec.AnchorID)
	kind := strings.ToLower(rec.Kind)

	if title != "" && title == q {
		return 1.0
	}
	if anchor != "" && anchor == q {
		return 0.9
	}

	terms := strings.Fields(q)
	if len(terms) == 0 {
		return 0
	}
	haystack := title + " " + anchor + " " + kind
	matched := 0
	considered := 0
	for _, term := range terms {
		if len(term) < 3 {
			continue
		}
		considered++
		if strings.Contains(haystack, term) {
			matched++
		}
	}
	if considered == 0 {
		return 0
	}
	return 0.7 * float64(matched) / float64(considered)
}

// citationRecency rewards recently accessed records, exponentially
// diminishing with age. Records never accessed score zero.
func citationRecency(rec *MemoryRecord, now time.Time) float64 {
	if rec.LastAccessed.IsZero() {
		return 0
	}
	days := now.Sub(rec.LastAccessed).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / citationDecayDays)
}

// LegacyWeights are the fixed six-factor weights of the backward-compatible
// scoring mode.
type LegacyWeights struct {
	Similarity     float64
	Importance     float64
	Retrievability float64
	Popularity     float64
	Recency        float64
	TierBoost      float64
}

// DefaultLegacyWeights returns the fixed legacy weighting.
func DefaultLegacyWeights() LegacyWeights {
	return LegacyWeights{
		Similarity:     0.30,
		Importance:     0.25,
		Retrievability: 0.15,
		Popularity:     0.15,
		Recency:        0.10,
		TierBoost:      0.05,
	}
}

// legacyRecencyDays is the slower decay horizon of the legacy recency
// factor, measured from the last access (falling back to creation).
const legacyRecencyDays = 30.0

// maxSearchBoost normalizes the legacy tier-boost factor.
var maxSearchBoost = TierConstitutional.Traits().SearchBoost

// LegacyScorer is the six-factor backward-compatible strategy.
type LegacyScorer struct {
	weights LegacyWeights
}

// NewLegacyScorer creates the six-factor scorer.
func NewLegacyScorer() *LegacyScorer {
	return &LegacyScorer{weights: DefaultLegacyWeights()}
}

func (s *LegacyScorer) Name() string { return ScorerLegacy }

// Score combines the six legacy factors. The fused candidate score stands
// in for raw similarity, clamped into [0, 1].
func (s *LegacyScorer) Score(rec *MemoryRecord, cand Candidate, query string, now time.Time) (float64, FactorScores) {
	similarity := cand.Score
	if similarity > 1.0 {
		similarity = 1.0
	}
	if similarity < 0 {
		similarity = 0
	}

	importance := rec.Tier.Traits().Value / maxTierValue
	retrievability := Retrievability(rec, now)
	popularity := usageMultiplier(rec.AccessCount) / usageCap
	recency := legacyRecency(rec, now)
	tierBoost := rec.Tier.Traits().SearchBoost / maxSearchBoost

	factors := FactorScores{
		"similarity":     similarity,
		"importance":     importance,
		"retrievability": retrievability,
		"popularity":     popularity,
		"recency":        recency,
		"tier_boost":     tierBoost,
	}

	score := s.weights.Similarity*similarity +
		s.weights.Importance*importance +
		s.weights.Retrievability*retrievability +
		s.weights.Popularity*popularity +
		s.weights.Recency*recency +
		s.weights.TierBoost*tierBoost

	return score, factors
}

func legacyRecency(rec *MemoryRecord, now time.Time) float64 {
	ref := rec.LastAccessed
	if ref.IsZero() {
		ref = rec.CreatedAt
	}
	if ref.IsZero() {
		return 0
	}
	days := now.Sub(ref).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	return math.Exp(-days / legacyRecencyDays)
}

// NewScorer selects a scoring strategy by its configuration name. Unknown
// names fall back to the composite scorer.
func NewScorer(name string, weights CompositeWeights) Scorer {
	switch name {
	case ScorerLegacy:
		return NewLegacyScorer()
	default:
		return NewCompositeScorer(weights)
	}
}
