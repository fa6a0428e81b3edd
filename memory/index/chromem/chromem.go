// Package chromem adapts an embedded chromem-go collection as a similarity
// index. chromem-go is a pure Go in-process vector database, so this
// adapter needs no external service.
package chromem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/nidhogg/engram/memory/index"
)

// Index wraps a single chromem collection. Documents are keyed by record
// UUID and carry the record vector as a precomputed embedding.
type Index struct {
	mu  sync.Mutex
	db  *chromem.DB
	col *chromem.Collection
}

var _ index.Index = (*Index)(nil)

// New creates an in-memory index with one collection using chromem's
// default cosine distance.
func New(collection string) (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", collection, err)
	}
	return &Index{db: db, col: col}, nil
}

// Add stores a record's vector under its ID, replacing any existing
// document with the same ID.
func (x *Index) Add(ctx context.Context, id uuid.UUID, vector []float32) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	err := x.col.AddDocument(ctx, chromem.Document{
		ID:        id.String(),
		Content:   id.String(),
		Embedding: vector,
	})
	if err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	return nil
}

// Remove deletes the document stored under id.
func (x *Index) Remove(ctx context.Context, id uuid.UUID) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.col.Delete(ctx, nil, nil, id.String()); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// Search returns up to k hits ordered by ascending distance. chromem
// rejects result counts larger than the collection, so k is clamped to
// the document count; an empty collection yields no hits.
func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]index.Hit, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if n := x.col.Count(); n < k {
		k = n
	}
	if k < 1 {
		return nil, nil
	}
	results, err := x.col.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	hits := make([]index.Hit, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		hits = append(hits, index.Hit{ID: id, Distance: 1.0 - float64(r.Similarity)})
	}
	return hits, nil
}

// Close releases resources. chromem keeps everything in process memory, so
// there is nothing to tear down.
func (x *Index) Close() error {
	return nil
}
