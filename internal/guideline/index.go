// Package guideline maintains the semantic index over regulatory guideline sources.
//
// The index is built once from configured sources, persisted under the cache directory and
// reused on later runs as long as the sources' content checksums are unchanged. After Load
// it is read-only and safe for concurrent Search calls.
package guideline

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/keyword"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/internal/vector"
	"github.com/hyperjump/kansa/pkg/utils"
)

const (
	indexFileName = "guidelines.idx"
	dbFileName    = "guidelines.db"
	bleveDirName  = "bleve"
)

// SourceReader splits a guideline source file into ordered text fragments.
type SourceReader interface {
	ExtractParagraphs(path string) ([]string, error)
}

// Index is the cached semantic index over guideline chunks.
type Index struct {
	sources           []string
	cacheDir          string
	minFragmentLength int
	embedder          embedding.Embedder
	reader            SourceReader
	logger            *zap.Logger

	keywordEnabled bool
	keywordWeight  float64
	semanticWeight float64
	vectorBackend  string

	vectors  vector.VectorIndex
	chunks   []models.GuidelineChunk
	position map[string]int
	keyword  keyword.KeywordIndex
	ready    bool
	rebuilt  bool
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger for build and search diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// New returns an unloaded index over cfg.Sources. Call Load before Search.
func New(cfg config.GuidelineConfig, embedder embedding.Embedder, reader SourceReader, opts ...Option) *Index {
	ix := &Index{
		sources:           append([]string(nil), cfg.Sources...),
		cacheDir:          cfg.CacheDir,
		minFragmentLength: cfg.MinFragmentLength,
		embedder:          embedder,
		reader:            reader,
		logger:            zap.NewNop(),
		keywordEnabled:    cfg.KeywordEnabled,
		keywordWeight:     cfg.KeywordWeight,
		semanticWeight:    cfg.SemanticWeight,
		vectorBackend:     cfg.VectorBackend,
		chunks:            []models.GuidelineChunk{},
		position:          map[string]int{},
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.vectorBackend == string(vector.IndexTypeFAISS) && !vector.IsFAISSAvailable() {
		ix.logger.Warn("FAISS vector backend not compiled in; using memory", zap.String("backend", ix.vectorBackend))
		ix.vectorBackend = string(vector.IndexTypeMemory)
	}
	return ix
}

// newVectors creates an empty vector index of the configured backend.
func (ix *Index) newVectors(dim int) (vector.VectorIndex, error) {
	return vector.NewVectorIndex(ix.vectorBackend, dim)
}

// VectorBackend returns the vector index backend in use.
func (ix *Index) VectorBackend() string {
	if ix.vectorBackend == "" {
		return string(vector.IndexTypeMemory)
	}
	return ix.vectorBackend
}

// Load reuses the on-disk cache when it matches the current sources and rebuilds it otherwise.
// Unreadable sources and embedding failures are logged and skipped, so the index may end up
// empty but is always queryable afterwards. Only context cancellation is returned as an error.
func (ix *Index) Load(ctx context.Context) error {
	if err := os.MkdirAll(ix.cacheDir, 0755); err != nil {
		ix.logger.Warn("cannot create guideline cache dir; index will not be persisted",
			zap.String("dir", ix.cacheDir), zap.Error(err))
	}
	current := currentSourceStates(ix.sources)

	var cache storage.GuidelineCache
	if store, err := storage.NewSQLiteStorage(filepath.Join(ix.cacheDir, dbFileName)); err != nil {
		ix.logger.Warn("cannot open guideline cache", zap.Error(err))
	} else {
		cache = store
		defer store.Close()
	}

	chunks, vectors, reason := ix.loadCache(ctx, cache, current)
	if vectors != nil {
		ix.rebuilt = false
		ix.logger.Info("guideline index loaded from cache", zap.Int("chunks", len(chunks)))
	} else {
		ix.logger.Info("rebuilding guideline index", zap.String("reason", reason), zap.Int("sources", len(ix.sources)))
		var err error
		chunks, vectors, err = ix.build(ctx)
		if err != nil {
			return err
		}
		ix.persist(ctx, cache, chunks, vectors, current)
		ix.rebuilt = true
		ix.logger.Info("guideline index built", zap.Int("chunks", len(chunks)))
	}

	ix.install(chunks, vectors)
	ix.openKeywordIndex(ctx)
	ix.ready = true
	return ctx.Err()
}

func (ix *Index) install(chunks []models.GuidelineChunk, vectors vector.VectorIndex) {
	if ix.vectors != nil && ix.vectors != vectors {
		_ = ix.vectors.Close()
	}
	ix.chunks = chunks
	ix.vectors = vectors
	ix.position = make(map[string]int, len(chunks))
	for i, c := range chunks {
		ix.position[c.SourceID] = i
	}
}

// Search returns up to k chunks most similar to query, by non-increasing score.
// It returns an empty slice when the index is not loaded or empty, when k <= 0, or when
// the query cannot be embedded.
func (ix *Index) Search(ctx context.Context, query string, k int) []models.GuidelineHit {
	hits := []models.GuidelineHit{}
	if !ix.ready || k <= 0 || len(ix.chunks) == 0 || ix.vectors == nil {
		return hits
	}
	qv, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		ix.logger.Warn("cannot embed guideline query", zap.String("query", utils.Truncate(query, 80)), zap.Error(err))
		return hits
	}
	qv = append([]float32(nil), qv...)
	vector.Normalize(qv)

	candidates := k
	if ix.keyword != nil {
		candidates = max(k*4, 20)
	}
	semantic, err := ix.vectors.Search(ctx, qv, candidates)
	if err != nil {
		ix.logger.Warn("guideline vector search failed", zap.Error(err))
		return hits
	}

	var scored []scoredChunk
	if ix.keyword != nil {
		kw, err := ix.keyword.Search(ctx, query, candidates)
		if err != nil {
			ix.logger.Warn("guideline keyword search failed; using semantic scores only", zap.Error(err))
		}
		scored = fuse(kw, semantic, ix.keywordWeight, ix.semanticWeight, ix.position)
	} else {
		scored = make([]scoredChunk, 0, len(semantic))
		for _, r := range semantic {
			if pos, ok := ix.position[r.ID]; ok {
				scored = append(scored, scoredChunk{position: pos, score: r.Score})
			}
		}
	}

	for _, s := range scored {
		if len(hits) == k {
			break
		}
		c := ix.chunks[s.position]
		hits = append(hits, models.GuidelineHit{SourceID: c.SourceID, Text: c.Text, Score: s.score})
	}
	return hits
}

// Chunks returns a copy of the indexed chunks in index order.
func (ix *Index) Chunks() []models.GuidelineChunk {
	return append([]models.GuidelineChunk(nil), ix.chunks...)
}

// Ready reports whether Load has completed.
func (ix *Index) Ready() bool {
	return ix.ready
}

// Rebuilt reports whether the last Load rebuilt the index instead of reusing the cache.
func (ix *Index) Rebuilt() bool {
	return ix.rebuilt
}

// Size returns the number of indexed chunks.
func (ix *Index) Size() int {
	return len(ix.chunks)
}

// CacheDir returns the directory holding the persisted index.
func (ix *Index) CacheDir() string {
	return ix.cacheDir
}

// Close releases the vector and keyword indexes.
func (ix *Index) Close() error {
	if ix.vectors != nil {
		_ = ix.vectors.Close()
		ix.vectors = nil
	}
	if ix.keyword != nil {
		err := ix.keyword.Close()
		ix.keyword = nil
		return err
	}
	return nil
}
