// Package keyword provides BM25 keyword search over guideline chunks.
package keyword

import (
	"context"

	"github.com/hyperjump/kansa/internal/models"
)

// KeywordIndex defines keyword search operations over guideline chunks.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []models.GuidelineChunk) error
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit; ID is the chunk's SourceID.
type KeywordResult struct {
	ID    string
	Score float64
}

// NormalizeScores divides every score by the maximum so the best hit scores 1.
func NormalizeScores(results []*KeywordResult) {
	var max float64
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return
	}
	for _, r := range results {
		r.Score /= max
	}
}
