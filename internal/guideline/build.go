package guideline

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/vector"
)

// BuildError describes a guideline source that was left out of the index.
type BuildError struct {
	Source string
	Stage  string // "read" or "embed"
	Cause  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("guideline source %s: %s failed: %v", e.Source, e.Stage, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// sourceChunks groups the chunks produced from one source.
type sourceChunks struct {
	path   string
	chunks []models.GuidelineChunk
}

// build extracts, filters and embeds all sources. Sources that fail are logged and omitted.
func (ix *Index) build(ctx context.Context) ([]models.GuidelineChunk, vector.VectorIndex, error) {
	groups := ix.collectChunks(ctx)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var chunks []models.GuidelineChunk
	for _, g := range groups {
		chunks = append(chunks, g.chunks...)
	}
	embeddings, err := ix.embedder.EmbedBatch(ctx, chunkTexts(chunks))
	if err != nil || len(embeddings) != len(chunks) {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		ix.logger.Warn("batch embedding failed; retrying per source", zap.Error(err))
		chunks, embeddings = ix.embedPerSource(ctx, groups)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
	}

	chunks, embeddings = ix.keepConsistent(chunks, embeddings)
	if len(chunks) == 0 {
		return []models.GuidelineChunk{}, ix.emptyVectors(), nil
	}

	vectors, err := ix.newVectors(len(embeddings[0]))
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.SourceID
		vector.Normalize(embeddings[i])
	}
	if err := vectors.Add(ctx, ids, embeddings); err != nil {
		vectors.Close()
		return nil, nil, fmt.Errorf("add guideline vectors: %w", err)
	}
	return chunks, vectors, nil
}

// collectChunks reads every source and turns its fragments into chunks with unique SourceIDs.
func (ix *Index) collectChunks(ctx context.Context) []sourceChunks {
	var groups []sourceChunks
	usedNames := map[string]int{}
	for _, path := range ix.sources {
		if ctx.Err() != nil {
			return groups
		}
		paragraphs, err := ix.reader.ExtractParagraphs(path)
		if err != nil {
			ix.logger.Warn("skipping guideline source", zap.Error(&BuildError{Source: path, Stage: "read", Cause: err}))
			continue
		}
		name := filepath.Base(path)
		usedNames[name]++
		if n := usedNames[name]; n > 1 {
			name = fmt.Sprintf("%s~%d", name, n)
		}
		frags := Fragments(paragraphs, ix.minFragmentLength)
		g := sourceChunks{path: path, chunks: make([]models.GuidelineChunk, len(frags))}
		for i, f := range frags {
			g.chunks[i] = models.GuidelineChunk{SourceID: fmt.Sprintf("%s#%d", name, i), Text: f}
		}
		ix.logger.Debug("guideline source read", zap.String("source", path),
			zap.Int("paragraphs", len(paragraphs)), zap.Int("chunks", len(frags)))
		groups = append(groups, g)
	}
	return groups
}

func (ix *Index) embedPerSource(ctx context.Context, groups []sourceChunks) ([]models.GuidelineChunk, [][]float32) {
	var chunks []models.GuidelineChunk
	var embeddings [][]float32
	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		embs, err := ix.embedder.EmbedBatch(ctx, chunkTexts(g.chunks))
		if err == nil && len(embs) != len(g.chunks) {
			err = fmt.Errorf("embedder returned %d vectors for %d chunks", len(embs), len(g.chunks))
		}
		if err != nil {
			ix.logger.Warn("omitting guideline source", zap.Error(&BuildError{Source: g.path, Stage: "embed", Cause: err}))
			continue
		}
		chunks = append(chunks, g.chunks...)
		embeddings = append(embeddings, embs...)
	}
	return chunks, embeddings
}

// keepConsistent drops chunks whose embedding dimension disagrees with the first one.
func (ix *Index) keepConsistent(chunks []models.GuidelineChunk, embeddings [][]float32) ([]models.GuidelineChunk, [][]float32) {
	if len(embeddings) == 0 {
		return nil, nil
	}
	dim := ix.embedder.Dimensions()
	if dim <= 0 {
		dim = len(embeddings[0])
	}
	outC := chunks[:0:0]
	outE := embeddings[:0:0]
	for i, e := range embeddings {
		if len(e) != dim || dim == 0 {
			ix.logger.Warn("dropping chunk with unexpected embedding size",
				zap.String("source_id", chunks[i].SourceID), zap.Int("got", len(e)), zap.Int("want", dim))
			continue
		}
		outC = append(outC, chunks[i])
		outE = append(outE, append([]float32(nil), e...))
	}
	return outC, outE
}

// emptyVectors returns an empty index when the embedding dimension is known, else nil.
func (ix *Index) emptyVectors() vector.VectorIndex {
	if dim := ix.embedder.Dimensions(); dim > 0 {
		if v, err := ix.newVectors(dim); err == nil {
			return v
		}
	}
	return nil
}

func chunkTexts(chunks []models.GuidelineChunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return texts
}
