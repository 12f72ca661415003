// Package cli renders analysis results, guideline hits, rules and history for the kansa
// command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the format named by s.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes a compliance result.
func WriteResult(w io.Writer, result *models.ComplianceResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, result)
	}
	doc := result.Document
	status := "COMPLIANT"
	if !result.IsCompliant {
		status = fmt.Sprintf("%d FINDING(S)", len(result.Findings))
	}
	fmt.Fprintf(w, "\n%s  [%s | %s | %s mode]\n", status, orDash(doc.Discipline), orDash(doc.DocumentType), result.Mode)
	if doc.ID != "" {
		fmt.Fprintf(w, "Document: %s\n", doc.ID)
	}
	if result.Status == models.StatusIncomplete {
		fmt.Fprintln(w, "Status: incomplete (model analysis did not finish; review manually)")
	}
	if result.Iterations > 0 || len(result.Guidelines) > 0 {
		fmt.Fprintf(w, "Guideline searches: %d extra, %d chunk(s) consulted\n", result.Iterations, len(result.Guidelines))
	}
	for i, f := range result.Findings {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%d. [%s] %s\n", i+1, strings.ToUpper(f.RiskLevel), f.Title)
		if f.Category != "" {
			fmt.Fprintf(w, "   Category: %s\n", f.Category)
		}
		if f.Detail != "" {
			fmt.Fprintf(w, "   %s\n", f.Detail)
		}
		if f.Evidence != "" {
			fmt.Fprintf(w, "   Evidence: %q\n", utils.Truncate(f.Evidence, 200))
		}
		if f.Suggestion != "" {
			fmt.Fprintf(w, "   Suggestion: %s\n", f.Suggestion)
		}
		if f.FinancialImpact != 0 {
			fmt.Fprintf(w, "   Financial impact: $%d\n", f.FinancialImpact)
		}
		source := f.Source
		if f.RuleURI != "" {
			source += " " + f.RuleURI
		}
		if f.Confidence != "" {
			source += ", confidence " + f.Confidence
		}
		fmt.Fprintf(w, "   Source: %s\n", source)
	}
	if total := result.FinancialImpact(); total != 0 {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Total financial impact: $%d\n", total)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteGuidelineHits writes guideline search results.
func WriteGuidelineHits(w io.Writer, query string, hits []models.GuidelineHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Query string                `json:"query"`
			Hits  []models.GuidelineHit `json:"hits"`
		}{query, hits})
	}
	fmt.Fprintf(w, "\nFound %d guideline chunk(s) for %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s\n", i+1, h.Score, h.SourceID)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Text, 300))
	}
	return nil
}

// WriteRules writes the loaded rules in load order.
func WriteRules(w io.Writer, rules []*models.ComplianceRule, problems []error, format OutputFormat) error {
	if format == OutputJSON {
		msgs := make([]string, 0, len(problems))
		for _, p := range problems {
			msgs = append(msgs, p.Error())
		}
		type ruleOut struct {
			*models.ComplianceRule
			Mode models.PredicateMode `json:"mode"`
		}
		out := make([]ruleOut, 0, len(rules))
		for _, r := range rules {
			ro := ruleOut{ComplianceRule: r}
			if r.Predicate != nil {
				ro.Mode = r.Predicate.Mode()
			}
			out = append(out, ro)
		}
		return writeJSON(w, struct {
			Rules    []ruleOut `json:"rules"`
			Problems []string  `json:"problems"`
		}{out, msgs})
	}
	fmt.Fprintf(w, "\n%d rule(s) loaded\n\n", len(rules))
	for _, r := range rules {
		mode := ""
		if r.Predicate != nil {
			mode = string(r.Predicate.Mode())
		}
		fmt.Fprintf(w, "%-4s %-18s %-9s %s\n", r.Discipline, r.DocumentType, r.Severity, r.IssueTitle)
		fmt.Fprintf(w, "     %s (%s)\n", r.URI, mode)
	}
	if len(problems) > 0 {
		fmt.Fprintf(w, "\n%d problem(s):\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(w, "  - %v\n", p)
		}
	}
	return nil
}

// WriteHistory writes stored analysis summaries.
func WriteHistory(w io.Writer, records []*models.AnalysisRecord, total int64, format OutputFormat) error {
	if format == OutputJSON {
		if records == nil {
			records = []*models.AnalysisRecord{}
		}
		return writeJSON(w, struct {
			Total    int64                    `json:"total"`
			Analyses []*models.AnalysisRecord `json:"analyses"`
		}{total, records})
	}
	fmt.Fprintf(w, "\n%d of %d analyses\n\n", len(records), total)
	for _, r := range records {
		verdict := "compliant"
		if !r.IsCompliant {
			verdict = fmt.Sprintf("%d finding(s)", r.FindingCount)
		}
		fmt.Fprintf(w, "%s  %s  %-9s %-10s %-4s %-18s %s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"), r.ID, r.Mode, r.Status,
			orDash(r.Discipline), orDash(r.DocumentType), verdict)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
