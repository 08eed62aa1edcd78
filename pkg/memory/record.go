// Package memory implements the retrieval and ranking core of Engram:
// record storage, lexical and vector indexes, rank fusion, composite
// relevance scoring, the correction ledger, and the embedding retry queue.
package memory

import (
	"errors"
	"time"
)

// Sentinel errors for the memory engine.
var (
	ErrNotFound              = errors.New("memory: record not found")
	ErrInvalidCorrectionType = errors.New("memory: invalid correction type")
	ErrSelfCorrection        = errors.New("memory: a memory cannot correct itself")
	ErrCorrectionNotFound    = errors.New("memory: correction not found")
	ErrAlreadyStarted        = errors.New("memory: engine already started")
	ErrNotStarted            = errors.New("memory: engine not started")
	ErrEmptyQuery            = errors.New("memory: empty query")
	ErrEmptyContent          = errors.New("memory: empty content")
)

// Tier is the fixed importance classification of a memory record.
type Tier string

const (
	TierConstitutional Tier = "constitutional"
	TierCritical       Tier = "critical"
	TierImportant      Tier = "important"
	TierNormal         Tier = "normal"
	TierTemporary      Tier = "temporary"
	TierDeprecated     Tier = "deprecated"
)

// TierTraits holds the fixed per-tier scoring parameters.
type TierTraits struct {
	// Value is the importance multiplier used by the scorer.
	Value float64

	// SearchBoost is the legacy-mode ranking boost.
	SearchBoost float64

	// DecayEnabled controls whether retrievability decays over time.
	DecayEnabled bool

	// Rank orders tiers for deterministic tie-breaking (lower = more important).
	Rank int
}

var tierTable = map[Tier]TierTraits{
	TierConstitutional: {Value: 2.0, SearchBoost: 3.0, DecayEnabled: false, Rank: 0},
	TierCritical:       {Value: 1.5, SearchBoost: 2.0, DecayEnabled: false, Rank: 1},
	TierImportant:      {Value: 1.2, SearchBoost: 1.5, DecayEnabled: false, Rank: 2},
	TierNormal:         {Value: 1.0, SearchBoost: 1.0, DecayEnabled: true, Rank: 3},
	TierTemporary:      {Value: 0.8, SearchBoost: 0.5, DecayEnabled: true, Rank: 4},
	TierDeprecated:     {Value: 0.0, SearchBoost: 0.0, DecayEnabled: false, Rank: 5},
}

// Traits returns the fixed traits for a tier. Unknown tiers fall back to
// normal.
func (t Tier) Traits() TierTraits {
	if traits, ok := tierTable[t]; ok {
		return traits
	}
	return tierTable[TierNormal]
}

// Valid reports whether t is one of the six known tiers.
func (t Tier) Valid() bool {
	_, ok := tierTable[t]
	return ok
}

// EmbeddingStatus tracks where a record stands in the embedding lifecycle.
type EmbeddingStatus string

const (
	StatusPending EmbeddingStatus = "pending"
	StatusRetry   EmbeddingStatus = "retry"
	StatusSuccess EmbeddingStatus = "success"
	StatusFailed  EmbeddingStatus = "failed"
)

// Stability bounds. Every stability write clamps into this range.
const (
	MinStability = 0.1
	MaxStability = 365.0
)

// clampStability forces a stability value into [MinStability, MaxStability].
func clampStability(s float64) float64 {
	if s < MinStability {
		return MinStability
	}
	if s > MaxStability {
		return MaxStability
	}
	return s
}

// MemoryRecord is a stored unit of knowledge.
type MemoryRecord struct {
	// ID is the stable integer identity, assigned at creation.
	ID int64 `json:"id"`

	// Title is a short human-readable name used for pattern matching.
	Title string `json:"title,omitempty"`

	// Kind classifies the record (note, decision, reference, ...).
	Kind string `json:"kind,omitempty"`

	// AnchorID ties the record to a document anchor, if any.
	AnchorID string `json:"anchor_id,omitempty"`

	// Content is the raw text of the memory.
	Content string `json:"content"`

	// Path is an optional on-disk source for re-embedding.
	Path string `json:"path,omitempty"`

	// Tier is the importance classification.
	Tier Tier `json:"tier"`

	// Stability controls decay resistance, always in [0.1, 365].
	Stability float64 `json:"stability"`

	// LastReview is the timestamp the decay formula measures from.
	// Zero value falls back to CreatedAt.
	LastReview time.Time `json:"last_review,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is the last citation/access timestamp.
	LastAccessed time.Time `json:"last_accessed,omitempty"`

	// AccessCount is a monotonically non-decreasing usage counter.
	AccessCount int64 `json:"access_count"`

	// Embedding is the stored vector; nil unless EmbeddingStatus is success.
	Embedding []float32 `json:"embedding,omitempty"`

	// EmbeddingStatus tracks the embedding state machine.
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`

	// RetryCount, LastRetryAt and FailureReason are retry bookkeeping,
	// mutated only by the retry manager.
	RetryCount    int       `json:"retry_count"`
	LastRetryAt   time.Time `json:"last_retry_at,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// reviewedAt returns the timestamp the decay formula measures from.
func (r *MemoryRecord) reviewedAt() time.Time {
	if !r.LastReview.IsZero() {
		return r.LastReview
	}
	return r.CreatedAt
}

func cloneRecord(r *MemoryRecord) *MemoryRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Embedding != nil {
		clone.Embedding = append([]float32(nil), r.Embedding...)
	}
	return &clone
}

// CorrectionType names the four supported correction semantics.
type CorrectionType string

const (
	CorrectionSuperseded CorrectionType = "superseded"
	CorrectionDeprecated CorrectionType = "deprecated"
	CorrectionRefined    CorrectionType = "refined"
	CorrectionMerged     CorrectionType = "merged"
)

// Valid reports whether t is one of the four correction types.
func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionSuperseded, CorrectionDeprecated, CorrectionRefined, CorrectionMerged:
		return true
	}
	return false
}

// Correction is an immutable append-only ledger row. It records all four
// stability values so undo restores the exact pre-correction state.
type Correction struct {
	// ID is the ledger row identity (UUID).
	ID string `json:"id"`

	// OriginalID is the memory being corrected.
	OriginalID int64 `json:"original_id"`

	// CorrectionID is the correcting memory; 0 means none (deprecation).
	CorrectionID int64 `json:"correction_id,omitempty"`

	Type   CorrectionType `json:"type"`
	Reason string         `json:"reason,omitempty"`

	OriginalBefore   float64 `json:"original_before"`
	OriginalAfter    float64 `json:"original_after"`
	CorrectionBefore float64 `json:"correction_before,omitempty"`
	CorrectionAfter  float64 `json:"correction_after,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// IsUndone flags a reversed correction; the row itself is never deleted.
	IsUndone bool       `json:"is_undone"`
	UndoneAt *time.Time `json:"undone_at,omitempty"`
}

// EdgeRelation names the causal-edge kinds derived from corrections.
type EdgeRelation string

const (
	RelationSupersedes  EdgeRelation = "supersedes"
	RelationDerivedFrom EdgeRelation = "derived_from"
)

// CausalEdge is a best-effort derived relationship between two memories.
type CausalEdge struct {
	From      int64        `json:"from"`
	To        int64        `json:"to"`
	Relation  EdgeRelation `json:"relation"`
	CreatedAt time.Time    `json:"created_at"`
}
