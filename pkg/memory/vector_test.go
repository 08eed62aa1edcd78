package memory

import (
	"context"
	"math"
	"testing"
)

// unitVec builds a normalized 3-dim embedding for tests.
func unitVec(x, y, z float32) []float32 {
	norm := float32(math.Sqrt(float64(x*x + y*y + z*z)))
	return []float32{x / norm, y / norm, z / norm}
}

func TestVectorIndexAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewVectorIndex()
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}

	if err := idx.Add(ctx, 1, unitVec(1, 0, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, 2, unitVec(0, 1, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(ctx, 3, unitVec(1, 0.1, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ids, sims, err := idx.Search(ctx, unitVec(1, 0, 0), 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(ids))
	}
	if ids[0] != 1 {
		t.Errorf("expected exact match first, got %d", ids[0])
	}
	if ids[1] != 3 {
		t.Errorf("expected near match second, got %d", ids[1])
	}
	if sims[0] < sims[1] {
		t.Errorf("similarities not descending: %v", sims)
	}
}

func TestVectorIndexSkipsEmptyEmbedding(t *testing.T) {
	ctx := context.Background()
	idx, err := NewVectorIndex()
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}

	if err := idx.Add(ctx, 1, nil); err != nil {
		t.Fatalf("empty embedding should be a silent no-op, got %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index, got %d", idx.Len())
	}

	ids, _, err := idx.Search(ctx, nil, 5)
	if err != nil || ids != nil {
		t.Errorf("nil query should return nothing, got ids=%v err=%v", ids, err)
	}
}

func TestVectorIndexTopKClampedToSize(t *testing.T) {
	ctx := context.Background()
	idx, err := NewVectorIndex()
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	if err := idx.Add(ctx, 1, unitVec(1, 0, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ids, _, err := idx.Search(ctx, unitVec(1, 0, 0), 50)
	if err != nil {
		t.Fatalf("Search with oversized topK: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected clamped result, got %d hits", len(ids))
	}
}

func TestVectorIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx, err := NewVectorIndex()
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	if err := idx.Add(ctx, 1, unitVec(1, 0, 0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := idx.Remove(ctx, 1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index after removal, got %d", idx.Len())
	}
}

func TestVectorIndexReset(t *testing.T) {
	ctx := context.Background()
	idx, err := NewVectorIndex()
	if err != nil {
		t.Fatalf("NewVectorIndex: %v", err)
	}
	for i := int64(1); i <= 3; i++ {
		if err := idx.Add(ctx, i, unitVec(float32(i), 1, 0)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if err := idx.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("expected empty index after reset, got %d", idx.Len())
	}

	// The index stays usable after a reset.
	if err := idx.Add(ctx, 9, unitVec(0, 0, 1)); err != nil {
		t.Fatalf("Add after reset: %v", err)
	}
	ids, _, err := idx.Search(ctx, unitVec(0, 0, 1), 1)
	if err != nil || len(ids) != 1 || ids[0] != 9 {
		t.Errorf("search after reset failed: ids=%v err=%v", ids, err)
	}
}
