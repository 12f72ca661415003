package compliance

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/retrieval"
	"github.com/hyperjump/kansa/pkg/utils"
)

// CategoryIncomplete marks the finding reported when the model never produced an answer.
const CategoryIncomplete = "analysis_incomplete"

const (
	defaultModelRisk       = "finding"
	defaultModelConfidence = "medium"
)

// ModelFinding converts one model finding object. Unknown keys are kept in Raw.
func ModelFinding(raw map[string]any) models.ComplianceFinding {
	f := models.ComplianceFinding{
		Source:     models.SourceModel,
		Title:      field(raw, "title", "issue_title", "issue"),
		Detail:     field(raw, "detail", "issue_detail", "description"),
		Category:   field(raw, "category", "issue_category"),
		Suggestion: field(raw, "suggestion", "recommendation"),
		Evidence:   field(raw, "evidence", "text", "quote"),
		RiskLevel:  strings.ToLower(field(raw, "severity", "risk", "risk_level")),
		Confidence: strings.ToLower(field(raw, "confidence")),
		Raw:        raw,
	}
	if f.Title == "" {
		f.Title = utils.Truncate(f.Detail, 80)
	}
	if f.Title == "" {
		f.Title = "Model finding"
	}
	if f.RiskLevel == "" {
		f.RiskLevel = defaultModelRisk
	}
	if f.Confidence == "" {
		f.Confidence = defaultModelConfidence
	}
	if n, ok := intField(raw, "financial_impact"); ok {
		f.FinancialImpact = n
	}
	return f
}

// IncompleteFinding reports an exhausted retrieval loop as a single low-confidence finding.
func IncompleteFinding(a *retrieval.Analysis) models.ComplianceFinding {
	return models.ComplianceFinding{
		Source:     models.SourceModel,
		Title:      "Analysis incomplete",
		Detail:     a.Summary(),
		Category:   CategoryIncomplete,
		Suggestion: "Review this document manually or rerun the analysis.",
		Evidence:   utils.Truncate(a.LastContent, 500),
		RiskLevel:  "review",
		Confidence: "low",
	}
}

// field returns the first non-empty value among keys, formatted as a string.
func field(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func intField(raw map[string]any, key string) (int, bool) {
	switch v := raw[key].(type) {
	case float64:
		return int(math.Round(v)), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(v, "$")))
		return n, err == nil
	default:
		return 0, false
	}
}
