package guideline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/fileid"
	"github.com/hyperjump/kansa/internal/keyword"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/internal/vector"
)

// currentSourceStates fingerprints every source by content checksum. Unreadable sources
// get an empty checksum so that they still take part in the comparison.
func currentSourceStates(sources []string) []models.SourceState {
	states := make([]models.SourceState, 0, len(sources))
	for _, path := range sources {
		st := models.SourceState{Path: path}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			st.Size = info.Size()
			st.ModTime = info.ModTime().UTC()
			if sum, err := fileid.FileChecksum(path); err == nil {
				st.Checksum = sum
			}
		}
		states = append(states, st)
	}
	return states
}

// sameSources reports whether two fingerprints cover the same paths with the same checksums.
// Modification times are ignored: touching a file does not invalidate the cache.
func sameSources(a, b []models.SourceState) bool {
	if len(a) != len(b) {
		return false
	}
	sa := sortedStates(a)
	sb := sortedStates(b)
	for i := range sa {
		if sa[i].Path != sb[i].Path || sa[i].Checksum != sb[i].Checksum {
			return false
		}
	}
	return true
}

func sortedStates(states []models.SourceState) []models.SourceState {
	out := append([]models.SourceState(nil), states...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// loadCache returns the cached chunks and vectors when they are usable for current.
// On a miss it returns nil vectors and the reason.
func (ix *Index) loadCache(ctx context.Context, cache storage.GuidelineCache, current []models.SourceState) ([]models.GuidelineChunk, vector.VectorIndex, string) {
	if cache == nil {
		return nil, nil, "cache unavailable"
	}
	chunks, stored, err := cache.LoadGuidelineCache(ctx)
	if err != nil {
		ix.logger.Warn("guideline cache unreadable", zap.Error(err))
		return nil, nil, "cache unreadable"
	}
	if len(stored) == 0 && len(current) > 0 {
		return nil, nil, "no cache"
	}
	if !sameSources(stored, current) {
		return nil, nil, "sources changed"
	}
	dim := ix.embedder.Dimensions()
	if dim <= 0 {
		return nil, nil, "embedding dimension unknown"
	}
	vectors, err := ix.newVectors(dim)
	if err != nil {
		return nil, nil, err.Error()
	}
	if err := vectors.Load(filepath.Join(ix.cacheDir, indexFileName)); err != nil {
		vectors.Close()
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, "index file missing"
		}
		ix.logger.Warn("guideline index file corrupt", zap.Error(err))
		return nil, nil, "index file corrupt"
	}
	ids := vectors.IDs()
	if len(ids) != len(chunks) {
		vectors.Close()
		return nil, nil, "index and chunk list disagree"
	}
	for i, id := range ids {
		if chunks[i].SourceID != id {
			vectors.Close()
			return nil, nil, "index and chunk list disagree"
		}
	}
	return chunks, vectors, ""
}

// persist writes the vector index and chunk list. Failures are logged; the in-memory
// index stays usable and the next Load rebuilds.
func (ix *Index) persist(ctx context.Context, cache storage.GuidelineCache, chunks []models.GuidelineChunk, vectors vector.VectorIndex, current []models.SourceState) {
	indexPath := filepath.Join(ix.cacheDir, indexFileName)
	if vectors == nil {
		_ = os.Remove(indexPath)
	} else if err := vectors.Save(indexPath); err != nil {
		ix.logger.Warn("cannot save guideline index", zap.Error(err))
		return
	}
	if cache == nil {
		return
	}
	if err := cache.ReplaceGuidelineCache(ctx, chunks, current); err != nil {
		ix.logger.Warn("cannot save guideline chunk list", zap.Error(err))
		_ = os.Remove(indexPath)
	}
}

// openKeywordIndex attaches the Bleve index when keyword search is enabled, rebuilding it
// whenever the semantic index was rebuilt or its document count disagrees.
func (ix *Index) openKeywordIndex(ctx context.Context) {
	if ix.keyword != nil {
		_ = ix.keyword.Close()
		ix.keyword = nil
	}
	if !ix.keywordEnabled || len(ix.chunks) == 0 {
		return
	}
	dir := filepath.Join(ix.cacheDir, bleveDirName)
	if !ix.rebuilt {
		if kw, err := keyword.NewBleveIndex(dir); err == nil {
			if n, err := kw.DocCount(); err == nil && int(n) == len(ix.chunks) {
				ix.keyword = kw
				return
			}
			_ = kw.Close()
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		ix.logger.Warn("cannot reset keyword index; keyword search disabled", zap.Error(err))
		return
	}
	kw, err := keyword.NewBleveIndex(dir)
	if err != nil {
		ix.logger.Warn("cannot create keyword index; keyword search disabled", zap.Error(err))
		return
	}
	if err := kw.IndexChunks(ctx, ix.chunks); err != nil {
		_ = kw.Close()
		ix.logger.Warn("cannot index guideline chunks for keyword search", zap.Error(err))
		return
	}
	ix.keyword = kw
}
