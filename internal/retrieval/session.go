package retrieval

import "github.com/hyperjump/kansa/internal/models"

// Session accumulates guideline context for one analysis. Chunks are deduplicated by
// SourceID and kept in first-seen order.
type Session struct {
	hits []models.GuidelineHit
	seen map[string]struct{}
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{seen: make(map[string]struct{})}
}

// Add appends hits not already present and returns how many were added.
func (s *Session) Add(hits []models.GuidelineHit) int {
	added := 0
	for _, h := range hits {
		if _, ok := s.seen[h.SourceID]; ok {
			continue
		}
		s.seen[h.SourceID] = struct{}{}
		s.hits = append(s.hits, h)
		added++
	}
	return added
}

// Hits returns the accumulated context.
func (s *Session) Hits() []models.GuidelineHit {
	return s.hits
}

// Len returns the number of accumulated chunks.
func (s *Session) Len() int {
	return len(s.hits)
}
