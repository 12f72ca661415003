package clinical

import (
	"context"
	"regexp"
	"strings"
)

// Document types returned by KeywordClassifier.
const (
	TypeEvaluation       = "evaluation"
	TypeReEvaluation     = "re_evaluation"
	TypeProgressNote     = "progress_note"
	TypeDailyNote        = "daily_note"
	TypeDischargeSummary = "discharge_summary"
	TypePlanOfCare       = "plan_of_care"
	TypeUnknown          = "unknown"
)

// DocumentClassifier assigns a document type to a note.
type DocumentClassifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

type typeCues struct {
	docType string
	cues    []string
}

// Order breaks score ties: more specific types come first.
var defaultCues = []typeCues{
	{TypeReEvaluation, []string{"re-evaluation", "reevaluation", "re-eval", "recertification", "re-assessment"}},
	{TypeDischargeSummary, []string{"discharge summary", "discharged", "discharge status", "goals met at discharge", "d/c summary"}},
	{TypePlanOfCare, []string{"plan of care", "certification period", "poc", "physician certification", "long term goals"}},
	{TypeEvaluation, []string{"initial evaluation", "evaluation", "prior level of function", "assessment findings", "history of present illness"}},
	{TypeProgressNote, []string{"progress note", "progress report", "reporting period", "progress toward goals", "goal status"}},
	{TypeDailyNote, []string{"daily note", "treatment note", "soap", "subjective", "patient tolerated", "visit #", "session"}},
}

var headerLine = regexp.MustCompile(`(?m)^\s*(?:#{1,6}\s+)?([A-Za-z][A-Za-z /\-]{2,60}):?\s*$`)

// headerWeight and leadWeight boost cues that appear in a heading or in the opening text.
const (
	headerWeight = 3.0
	leadWeight   = 2.0
	leadChars    = 200
)

// KeywordClassifier scores each document type by cue phrases, boosting cues found in
// headings and near the start of the note.
type KeywordClassifier struct {
	cues []typeCues
}

// NewKeywordClassifier creates a classifier with the built-in cue lists.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{cues: defaultCues}
}

// Classify returns the best scoring document type, or TypeUnknown when no cue matches.
func (c *KeywordClassifier) Classify(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return TypeUnknown, nil
	}
	lead := lower
	if len(lead) > leadChars {
		lead = lead[:leadChars]
	}
	var headers []string
	for _, m := range headerLine.FindAllStringSubmatch(lower, -1) {
		headers = append(headers, strings.TrimSpace(m[1]))
	}

	best, bestScore := TypeUnknown, 0.0
	for _, tc := range c.cues {
		score := 0.0
		for _, cue := range tc.cues {
			n := countTerm(lower, cue)
			if n == 0 {
				continue
			}
			score += float64(n)
			if strings.Contains(lead, cue) {
				score += leadWeight
			}
			for _, h := range headers {
				if strings.Contains(h, cue) {
					score += headerWeight
				}
			}
		}
		if score > bestScore {
			best, bestScore = tc.docType, score
		}
	}
	return best, nil
}

// countTerm counts occurrences of term bounded by non-letters, so "poc" does not match
// inside "hypocalcemia".
func countTerm(text, term string) int {
	count := 0
	for i := 0; ; {
		j := strings.Index(text[i:], term)
		if j < 0 {
			return count
		}
		start := i + j
		end := start + len(term)
		if boundary(text, start-1) && boundary(text, end) {
			count++
		}
		i = start + 1
	}
}

func boundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9')
}
