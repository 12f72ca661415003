package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/hyperjump/kansa/internal/models"
)

// batchSize bounds the number of chunks per Bleve batch.
const batchSize = 500

// chunkDoc is the document shape stored in Bleve.
type chunkDoc struct {
	SourceID string `json:"source_id"`
	Text     string `json:"text"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing directory is opened as-is; callers remove it to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// standard analyzer lowercases and tokenizes without stemming, so regulatory
	// terms like "recertification" match exactly
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	sourceMapping := bleve.NewKeywordFieldMapping()
	sourceMapping.Store = true
	docMapping.AddFieldMappingsAt("source_id", sourceMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// IndexChunks adds chunks keyed by SourceID, in batches.
func (b *BleveIndex) IndexChunks(ctx context.Context, chunks []models.GuidelineChunk) error {
	batch := b.index.NewBatch()
	for i, c := range chunks {
		if err := batch.Index(c.SourceID, chunkDoc{SourceID: c.SourceID, Text: c.Text}); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.SourceID, err)
		}
		if batch.Size() >= batchSize || i == len(chunks)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("Bleve batch failed: %w", err)
			}
			batch = b.index.NewBatch()
		}
	}
	return nil
}

// Search runs a match query over chunk text and returns up to limit results by descending score.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	if limit <= 0 {
		return []*KeywordResult{}, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField("text")
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
