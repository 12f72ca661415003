// Package vector provides flat inner-product vector indexes sharing a compact on-disk format.
package vector

import (
	"context"
	"errors"
)

// ErrCorruptIndex reports an index file that cannot be decoded.
var ErrCorruptIndex = errors.New("corrupt vector index file")

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	IDs() []string
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // inner product; cosine similarity for unit vectors
}
