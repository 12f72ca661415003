package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/hyperjump/kansa/internal/vector"
	"github.com/hyperjump/kansa/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Vectors are
// derived from a bag of hashed words, so texts sharing words score higher than
// unrelated texts and the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
	// FailOn, when set, makes Embed fail for matching texts.
	FailOn func(text string) bool
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic, unit-length embedding.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.FailOn != nil && e.FailOn(text) {
		return nil, fmt.Errorf("mock embedder refused %q", utils.Truncate(text, 20))
	}
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(strings.ToLower(text)) {
		h := HashString(word)
		emb[h%e.dimensions] += 1
		emb[(h/7)%e.dimensions] += float32(math.Sin(float64(h))) * 0.5
	}
	// keep blank text away from the zero vector
	emb[0] += 0.01
	vector.Normalize(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Calls returns how many single-text embeddings were computed.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
