// Package storage persists the guideline chunk cache and the analysis history in SQLite.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kansa/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// GuidelineCache stores the chunk list and source fingerprints that back a saved vector index.
type GuidelineCache interface {
	// LoadGuidelineCache returns the chunks in index order and the source states they were built from.
	LoadGuidelineCache(ctx context.Context) ([]models.GuidelineChunk, []models.SourceState, error)
	// ReplaceGuidelineCache atomically replaces the cached chunks and source states.
	ReplaceGuidelineCache(ctx context.Context, chunks []models.GuidelineChunk, states []models.SourceState) error
	Close() error
}

// AnalysisStore keeps a history of compliance results.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, result *models.ComplianceResult) error
	GetAnalysis(ctx context.Context, id string) (*models.ComplianceResult, error)
	ListAnalyses(ctx context.Context, offset, limit int) ([]*models.AnalysisRecord, error)
	CountAnalyses(ctx context.Context) (int64, error)
	Close() error
}
