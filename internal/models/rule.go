package models

import "strings"

// AnyDocumentType matches every document type.
const AnyDocumentType = "any"

// PredicateMode names the keyword semantics a rule was loaded with.
type PredicateMode string

const (
	ModeRequiredPresence     PredicateMode = "required_presence"
	ModeTriggerWithExclusion PredicateMode = "trigger_with_exclusion"
)

// ComplianceRule is a single loaded compliance check. Rules are immutable after loading.
type ComplianceRule struct {
	URI              string           `json:"uri"`
	Severity         string           `json:"severity"`
	StrictSeverity   string           `json:"strict_severity,omitempty"`
	IssueTitle       string           `json:"issue_title"`
	IssueDetail      string           `json:"issue_detail"`
	IssueCategory    string           `json:"issue_category"`
	Discipline       string           `json:"discipline"`
	DocumentType     string           `json:"document_type"`
	Suggestion       string           `json:"suggestion,omitempty"`
	FinancialImpact  int              `json:"financial_impact"`
	PositiveKeywords []string         `json:"positive_keywords,omitempty"`
	NegativeKeywords []string         `json:"negative_keywords,omitempty"`
	Predicate        KeywordPredicate `json:"-"`
}

// AppliesTo reports whether the rule is in scope for the given discipline and document type.
// Both comparisons ignore case.
func (r *ComplianceRule) AppliesTo(discipline, documentType string) bool {
	if !strings.EqualFold(r.Discipline, discipline) {
		return false
	}
	return strings.EqualFold(r.DocumentType, AnyDocumentType) || strings.EqualFold(r.DocumentType, documentType)
}

// RiskLevel returns the severity reported for a firing rule.
func (r *ComplianceRule) RiskLevel(strict bool) string {
	if strict && r.StrictSeverity != "" {
		return r.StrictSeverity
	}
	return r.Severity
}

// KeywordPredicate decides whether a rule fires on a lower-cased document text.
type KeywordPredicate interface {
	Fires(lowerText string) bool
	Mode() PredicateMode
}

// RequiredPresence fires when the text contains none of the required terms.
type RequiredPresence struct {
	RequiredTerms []string
}

// Fires implements KeywordPredicate.
func (p RequiredPresence) Fires(lowerText string) bool {
	return firstMatch(lowerText, p.RequiredTerms) < 0
}

// Mode implements KeywordPredicate.
func (p RequiredPresence) Mode() PredicateMode { return ModeRequiredPresence }

// TriggerWithExclusion fires when the text contains at least one trigger term
// and none of the exclusion terms.
type TriggerWithExclusion struct {
	TriggerTerms   []string
	ExclusionTerms []string
}

// Fires implements KeywordPredicate.
func (p TriggerWithExclusion) Fires(lowerText string) bool {
	if firstMatch(lowerText, p.TriggerTerms) < 0 {
		return false
	}
	return firstMatch(lowerText, p.ExclusionTerms) < 0
}

// Mode implements KeywordPredicate.
func (p TriggerWithExclusion) Mode() PredicateMode { return ModeTriggerWithExclusion }

// FirstTrigger returns the first trigger term found in lowerText and its byte offset,
// or ("", -1).
func (p TriggerWithExclusion) FirstTrigger(lowerText string) (string, int) {
	for _, term := range p.TriggerTerms {
		if i := strings.Index(lowerText, term); i >= 0 {
			return term, i
		}
	}
	return "", -1
}

// NewKeywordPredicate selects the keyword semantics for a rule: an empty positive
// set yields RequiredPresence over the negative set, otherwise TriggerWithExclusion.
// Terms are lower-cased and blank terms dropped.
func NewKeywordPredicate(positive, negative []string) KeywordPredicate {
	pos := lowerTerms(positive)
	neg := lowerTerms(negative)
	if len(pos) == 0 {
		return RequiredPresence{RequiredTerms: neg}
	}
	return TriggerWithExclusion{TriggerTerms: pos, ExclusionTerms: neg}
}

func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// firstMatch returns the index of the first term contained in text, or -1.
func firstMatch(text string, terms []string) int {
	for i, term := range terms {
		if strings.Contains(text, term) {
			return i
		}
	}
	return -1
}
