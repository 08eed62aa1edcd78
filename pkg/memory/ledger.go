package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Correction stability adjustments.
const (
	correctionPenalty = 0.5
	correctionBoost   = 1.2
)

// defaultChainDepth bounds correction chain traversal.
const defaultChainDepth = 5

// Ledger records corrections between memories and adjusts both sides'
// stability atomically and reversibly. A whole-ledger mutex serializes
// capture/apply/persist so concurrent corrections on the same id cannot
// interleave their before/after capture.
type Ledger struct {
	mu    sync.Mutex
	store Store
	log   engineLogger

	correctionHook func(CorrectionType)
	undoHook       func()
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithCorrectionHook installs a callback fired after every recorded
// correction, used for metrics.
func WithCorrectionHook(fn func(CorrectionType)) LedgerOption {
	return func(l *Ledger) { l.correctionHook = fn }
}

// WithUndoHook installs a callback fired after every successful undo.
func WithUndoHook(fn func()) LedgerOption {
	return func(l *Ledger) { l.undoHook = fn }
}

// NewLedger creates a correction ledger over the store.
func NewLedger(store Store, log engineLogger, opts ...LedgerOption) *Ledger {
	l := &Ledger{store: store, log: log}
	if l.log == nil {
		l.log = nopEngineLogger{}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record validates and applies one correction: the original's stability is
// halved, the correcting memory's (if any) is boosted by 1.2, both clamped
// to [0.1, 365], and one immutable ledger row holding all four stability
// values is written — all in a single storage transaction. The derived
// causal edge is best-effort and never fails the correction.
func (l *Ledger) Record(ctx context.Context, originalID, correctionID int64, ctype CorrectionType, reason string) (*Correction, error) {
	if !ctype.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCorrectionType, ctype)
	}
	if correctionID != 0 && correctionID == originalID {
		return nil, ErrSelfCorrection
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	original, err := l.store.GetRecord(ctx, originalID)
	if err != nil {
		return nil, fmt.Errorf("memory: correction original %d: %w", originalID, err)
	}

	var correcting *MemoryRecord
	if correctionID != 0 {
		correcting, err = l.store.GetRecord(ctx, correctionID)
		if err != nil {
			return nil, fmt.Errorf("memory: correction target %d: %w", correctionID, err)
		}
	}

	cor := &Correction{
		ID:             uuid.New().String(),
		OriginalID:     originalID,
		CorrectionID:   correctionID,
		Type:           ctype,
		Reason:         reason,
		OriginalBefore: original.Stability,
		OriginalAfter:  clampStability(original.Stability * correctionPenalty),
		CreatedAt:      time.Now(),
	}
	if correcting != nil {
		cor.CorrectionBefore = correcting.Stability
		cor.CorrectionAfter = clampStability(correcting.Stability * correctionBoost)
	}

	original.Stability = cor.OriginalAfter
	if correcting != nil {
		correcting.Stability = cor.CorrectionAfter
	}

	err = l.store.Transact(ctx, func(tx Tx) error {
		if err := tx.PutRecord(original); err != nil {
			return err
		}
		if correcting != nil {
			if err := tx.PutRecord(correcting); err != nil {
				return err
			}
		}
		return tx.PutCorrection(cor)
	})
	if err != nil {
		return nil, fmt.Errorf("memory: commit correction: %w", err)
	}

	l.writeEdge(ctx, cor)

	l.log.Info("correction recorded",
		"correction_id", cor.ID,
		"type", ctype,
		"original_id", originalID,
		"correction_target", correctionID,
	)
	if l.correctionHook != nil {
		l.correctionHook(ctype)
	}
	return cor, nil
}

// writeEdge derives the causal edge for a correction, fire-and-log: a
// failed edge write never propagates.
func (l *Ledger) writeEdge(ctx context.Context, cor *Correction) {
	if cor.CorrectionID == 0 {
		return
	}

	relation := RelationSupersedes
	if cor.Type == CorrectionRefined || cor.Type == CorrectionMerged {
		relation = RelationDerivedFrom
	}

	edge := &CausalEdge{
		From:      cor.CorrectionID,
		To:        cor.OriginalID,
		Relation:  relation,
		CreatedAt: cor.CreatedAt,
	}
	if err := l.store.PutEdge(ctx, edge); err != nil {
		l.log.Warn("causal edge write failed",
			"correction_id", cor.ID,
			"error", err,
		)
	}
}

// Undo restores both sides' recorded pre-correction stability exactly and
// flags the row undone. Undoing an already-undone or unknown id is a no-op
// that reports false without an error.
func (l *Ledger) Undo(ctx context.Context, correctionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cor, err := l.store.GetCorrection(ctx, correctionID)
	if errors.Is(err, ErrCorrectionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cor.IsUndone {
		return false, nil
	}

	original, err := l.store.GetRecord(ctx, cor.OriginalID)
	if err != nil {
		return false, fmt.Errorf("memory: undo original %d: %w", cor.OriginalID, err)
	}
	var correcting *MemoryRecord
	if cor.CorrectionID != 0 {
		correcting, err = l.store.GetRecord(ctx, cor.CorrectionID)
		if err != nil {
			return false, fmt.Errorf("memory: undo target %d: %w", cor.CorrectionID, err)
		}
	}

	// Restore the recorded values, not recomputed ones.
	original.Stability = cor.OriginalBefore
	if correcting != nil {
		correcting.Stability = cor.CorrectionBefore
	}

	now := time.Now()
	cor.IsUndone = true
	cor.UndoneAt = &now

	err = l.store.Transact(ctx, func(tx Tx) error {
		if err := tx.PutRecord(original); err != nil {
			return err
		}
		if correcting != nil {
			if err := tx.PutRecord(correcting); err != nil {
				return err
			}
		}
		return tx.PutCorrection(cor)
	})
	if err != nil {
		return false, fmt.Errorf("memory: commit undo: %w", err)
	}

	l.log.Info("correction undone", "correction_id", cor.ID)
	if l.undoHook != nil {
		l.undoHook()
	}
	return true, nil
}

// Deprecate marks a memory outdated with no replacement.
func (l *Ledger) Deprecate(ctx context.Context, id int64, reason string) (*Correction, error) {
	return l.Record(ctx, id, 0, CorrectionDeprecated, reason)
}

// Supersede records that newID replaces oldID.
func (l *Ledger) Supersede(ctx context.Context, oldID, newID int64, reason string) (*Correction, error) {
	return l.Record(ctx, oldID, newID, CorrectionSuperseded, reason)
}

// Refine records that refinedID improves originalID's content.
func (l *Ledger) Refine(ctx context.Context, originalID, refinedID int64, reason string) (*Correction, error) {
	return l.Record(ctx, originalID, refinedID, CorrectionRefined, reason)
}

// MergeResult is the per-source outcome of a Merge call.
type MergeResult struct {
	SourceID     int64  `json:"source_id"`
	CorrectionID string `json:"correction_id,omitempty"`
	Err          string `json:"error,omitempty"`
}

// Merge consolidates each source into the target, applying the penalty and
// boost pair once per source. Individual failures are reported per source;
// the batch continues past them and the call itself never fails.
func (l *Ledger) Merge(ctx context.Context, sources []int64, target int64, reason string) []MergeResult {
	results := make([]MergeResult, 0, len(sources))
	for _, src := range sources {
		res := MergeResult{SourceID: src}
		cor, err := l.Record(ctx, src, target, CorrectionMerged, reason)
		if err != nil {
			res.Err = err.Error()
			l.log.Warn("merge source failed", "source_id", src, "target_id", target, "error", err)
		} else {
			res.CorrectionID = cor.ID
		}
		results = append(results, res)
	}
	return results
}

// For returns corrections touching the id on either side, newest first.
// Undone rows are excluded unless includeUndone is set.
func (l *Ledger) For(ctx context.Context, id int64, includeUndone bool) ([]*Correction, error) {
	all, err := l.store.CorrectionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if includeUndone {
		return all, nil
	}
	filtered := all[:0]
	for _, cor := range all {
		if !cor.IsUndone {
			filtered = append(filtered, cor)
		}
	}
	return filtered, nil
}

// Chain walks the correction graph bidirectionally from id, at most
// maxDepth hops (default 5), with a visited set guarding against cycles.
func (l *Ledger) Chain(ctx context.Context, id int64, maxDepth int) ([]*Correction, error) {
	if maxDepth <= 0 {
		maxDepth = defaultChainDepth
	}

	var chain []*Correction
	seenCorrections := make(map[string]struct{})
	seenMemories := map[int64]struct{}{id: {}}
	frontier := []int64{id}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []int64
		for _, memID := range frontier {
			corrections, err := l.store.CorrectionsFor(ctx, memID)
			if err != nil {
				return nil, err
			}
			for _, cor := range corrections {
				if _, seen := seenCorrections[cor.ID]; seen {
					continue
				}
				seenCorrections[cor.ID] = struct{}{}
				chain = append(chain, cor)

				for _, neighbor := range []int64{cor.OriginalID, cor.CorrectionID} {
					if neighbor == 0 {
						continue
					}
					if _, seen := seenMemories[neighbor]; seen {
						continue
					}
					seenMemories[neighbor] = struct{}{}
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	return chain, nil
}

// LedgerStats summarizes the correction ledger.
type LedgerStats struct {
	Total   int                    `json:"total"`
	ByType  map[CorrectionType]int `json:"by_type"`
	Undone  int                    `json:"undone"`
	Last24h int                    `json:"last_24h"`
}

// Stats returns correction totals by type, undone count and the last-24h
// count.
func (l *Ledger) Stats(ctx context.Context) (*LedgerStats, error) {
	all, err := l.store.ListCorrections(ctx)
	if err != nil {
		return nil, err
	}

	stats := &LedgerStats{ByType: make(map[CorrectionType]int)}
	cutoff := time.Now().Add(-24 * time.Hour)
	for _, cor := range all {
		stats.Total++
		stats.ByType[cor.Type]++
		if cor.IsUndone {
			stats.Undone++
		}
		if cor.CreatedAt.After(cutoff) {
			stats.Last24h++
		}
	}
	return stats, nil
}
