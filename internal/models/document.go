// Package models defines core data structures for therapy documents, guideline chunks,
// compliance rules and analysis results.
package models

import (
	"strings"
	"time"
)

// TherapyDocument is a clinical note submitted for analysis. It is not persisted.
type TherapyDocument struct {
	ID           string `json:"id,omitempty"`
	Text         string `json:"text"`
	Discipline   string `json:"discipline"`
	DocumentType string `json:"document_type"`
}

// Blank reports whether the document carries no analyzable text.
func (d TherapyDocument) Blank() bool {
	return strings.TrimSpace(d.Text) == ""
}

// GuidelineChunk is one indexed fragment of a regulatory guideline source.
// SourceID is unique per chunk: "<source base name>#<fragment ordinal>".
type GuidelineChunk struct {
	SourceID string `json:"source_id" db:"source_id"`
	Text     string `json:"text" db:"text"`
}

// GuidelineHit is a guideline search result.
type GuidelineHit struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
}

// Chunk returns the hit without its score.
func (h GuidelineHit) Chunk() GuidelineChunk {
	return GuidelineChunk{SourceID: h.SourceID, Text: h.Text}
}

// SourceState is the cache fingerprint of one guideline source.
// An empty Checksum marks a source that could not be read.
type SourceState struct {
	Path     string    `json:"path" db:"path"`
	Checksum string    `json:"checksum" db:"checksum"`
	Size     int64     `json:"size" db:"size"`
	ModTime  time.Time `json:"mod_time" db:"mod_time"`
}
