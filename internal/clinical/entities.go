// Package clinical extracts clinical entities from therapy notes and classifies notes by
// document type.
package clinical

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Entity labels produced by PatternRecognizer.
const (
	LabelDate        = "DATE"
	LabelFrequency   = "FREQUENCY"
	LabelDuration    = "DURATION"
	LabelICD10       = "ICD10"
	LabelCPT         = "CPT"
	LabelMeasurement = "MEASUREMENT"
)

// Entity is a labeled span of document text.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// EntityExtractor finds clinical entities in text.
type EntityExtractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
}

type pattern struct {
	label string
	re    *regexp.Regexp
}

// Patterns are tried in order; a span claimed by an earlier pattern is not relabeled.
var defaultPatterns = []pattern{
	{LabelDate, regexp.MustCompile(`\b(?:\d{1,2}/\d{1,2}/\d{2,4}|\d{4}-\d{2}-\d{2}|(?i:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.? \d{1,2},? \d{4})\b`)},
	{LabelFrequency, regexp.MustCompile(`(?i)\b(?:\d+\s*x\s*/?\s*(?:per\s+)?(?:week|wk|day|month)|\d+\s+times\s+(?:a|per)\s+(?:week|day|month)|(?:once|twice)\s+(?:a|per)\s+(?:week|day)|daily|weekly|biweekly|bid|tid|qid)\b`)},
	{LabelDuration, regexp.MustCompile(`(?i)\b(?:for\s+)?\d+\s*(?:-\s*\d+\s*)?(?:weeks?|wks?|days?|months?|mins?|minutes?|hours?|hrs?)\b`)},
	{LabelICD10, regexp.MustCompile(`\b[A-TV-Z][0-9][0-9AB](?:\.[0-9A-TV-Z]{1,4})?\b`)},
	{LabelCPT, regexp.MustCompile(`\b9[0-9]{4}\b`)},
	{LabelMeasurement, regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:degrees|deg|°|cm|mm|kg|lbs?|%|/10)(?:\W|$)`)},
}

// PatternRecognizer is a regex-based EntityExtractor for dates, visit frequencies,
// durations, ICD-10 and CPT codes and measurements.
type PatternRecognizer struct {
	patterns []pattern
}

// NewPatternRecognizer creates a recognizer with the built-in patterns.
func NewPatternRecognizer() *PatternRecognizer {
	return &PatternRecognizer{patterns: defaultPatterns}
}

// ExtractEntities returns non-overlapping entities ordered by position.
func (r *PatternRecognizer) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entities := []Entity{}
	claimed := func(start, end int) bool {
		for _, e := range entities {
			if start < e.End && end > e.Start {
				return true
			}
		}
		return false
	}
	for _, p := range r.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			span := strings.TrimRight(text[start:end], " \t\n.,;:)")
			end = start + len(span)
			if span == "" || claimed(start, end) {
				continue
			}
			entities = append(entities, Entity{Text: span, Label: p.label, Start: start, End: end})
		}
	}
	sort.SliceStable(entities, func(i, j int) bool { return entities[i].Start < entities[j].Start })
	return entities, nil
}

// FormatEntities renders entities as "LABEL: text" lines for prompts.
func FormatEntities(entities []Entity) string {
	if len(entities) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, e := range entities {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(e.Label)
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}
