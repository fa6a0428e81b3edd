// Package index defines the approximate-nearest-neighbor collaborator a
// memory store can delegate candidate generation to. Adapters translate a
// backend's similarity convention into a distance, where 0 means identical
// and larger means farther apart.
package index

import (
	"context"

	"github.com/google/uuid"
)

// Hit is a single search result from an index backend.
type Hit struct {
	ID       uuid.UUID
	Distance float64
}

// Index is implemented by vector-index adapters. Search returns up to k
// hits ordered by ascending distance.
type Index interface {
	Add(ctx context.Context, id uuid.UUID, vector []float32) error
	Remove(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
}

// ScoreFromDistance maps a distance to a similarity score in (0, 1], with
// distance 0 mapping to 1. Negative distances from a misbehaving backend
// are treated as 0.
func ScoreFromDistance(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1.0 / (1.0 + d)
}
