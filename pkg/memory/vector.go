package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// VectorIndex provides cosine-similarity search over record embeddings,
// backed by the embedded chromem vector database. The index is rebuilt from
// the store at engine start; it is not the source of truth.
type VectorIndex struct {
	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
}

const vectorCollection = "memories"

// NewVectorIndex creates an empty in-memory vector index.
func NewVectorIndex() (*VectorIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(vectorCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("memory: create vector collection: %w", err)
	}
	return &VectorIndex{db: db, col: col}, nil
}

// Add inserts or replaces a record's embedding.
func (v *VectorIndex) Add(ctx context.Context, id int64, embedding []float32) error {
	if len(embedding) == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	doc := chromem.Document{
		ID: strconv.FormatInt(id, 10),
		// chromem requires non-empty content; the id placeholder is never
		// used for matching, only embeddings are queried.
		Content:   strconv.FormatInt(id, 10),
		Embedding: embedding,
	}
	if err := v.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("memory: index vector %d: %w", id, err)
	}
	return nil
}

// Remove deletes a record's embedding. Removing an unindexed id is a no-op.
func (v *VectorIndex) Remove(ctx context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.col.Delete(ctx, nil, nil, strconv.FormatInt(id, 10))
}

// Search returns the ids most similar to the query embedding, ranked by
// descending similarity, along with their similarities.
func (v *VectorIndex) Search(ctx context.Context, embedding []float32, topK int) ([]int64, []float64, error) {
	if len(embedding) == 0 {
		return nil, nil, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	count := v.col.Count()
	if count == 0 {
		return nil, nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := v.col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: vector search: %w", err)
	}

	ids := make([]int64, 0, len(results))
	sims := make([]float64, 0, len(results))
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		sims = append(sims, float64(r.Similarity))
	}
	return ids, sims, nil
}

// Len returns the number of indexed embeddings.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.col.Count()
}

// Reset drops every indexed embedding, used before a rebuild.
func (v *VectorIndex) Reset() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.db.DeleteCollection(vectorCollection); err != nil {
		return fmt.Errorf("memory: reset vector index: %w", err)
	}
	col, err := v.db.CreateCollection(vectorCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("memory: recreate vector collection: %w", err)
	}
	v.col = col
	return nil
}
