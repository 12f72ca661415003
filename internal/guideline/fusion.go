package guideline

import (
	"sort"

	"github.com/hyperjump/kansa/internal/keyword"
	"github.com/hyperjump/kansa/internal/vector"
)

type scoredChunk struct {
	position int
	score    float64
}

// fuse combines max-normalized keyword scores with semantic scores by weight.
// Results are ordered by fused score, ties by index position.
func fuse(kw []*keyword.KeywordResult, semantic []*vector.VectorResult, keywordWeight, semanticWeight float64, position map[string]int) []scoredChunk {
	keyword.NormalizeScores(kw)
	type parts struct{ kw, sem float64 }
	byPos := map[int]*parts{}
	get := func(id string) *parts {
		pos, ok := position[id]
		if !ok {
			return nil
		}
		p := byPos[pos]
		if p == nil {
			p = &parts{}
			byPos[pos] = p
		}
		return p
	}
	for _, r := range kw {
		if p := get(r.ID); p != nil {
			p.kw = r.Score
		}
	}
	for _, r := range semantic {
		if p := get(r.ID); p != nil {
			p.sem = r.Score
		}
	}

	out := make([]scoredChunk, 0, len(byPos))
	for pos, p := range byPos {
		out = append(out, scoredChunk{position: pos, score: keywordWeight*p.kw + semanticWeight*p.sem})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].position < out[j].position
	})
	return out
}
