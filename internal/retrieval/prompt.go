package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kansa/internal/clinical"
	"github.com/hyperjump/kansa/internal/models"
)

// AnalysisMarker ends every prompt. Models that echo the prompt are cut at its last
// occurrence.
const AnalysisMarker = "### Analysis:"

type promptInput struct {
	doc              models.TherapyDocument
	documentType     string
	entities         []clinical.Entity
	context          []models.GuidelineHit
	searchesLeft     int
	previousRejected bool
}

func buildPrompt(in promptInput) string {
	var b strings.Builder

	discipline := in.doc.Discipline
	if discipline == "" {
		discipline = "therapy"
	}
	fmt.Fprintf(&b, "Review this %s %s for compliance with Medicare and payer documentation guidelines.\n\n",
		strings.ToUpper(discipline), strings.ReplaceAll(in.documentType, "_", " "))

	b.WriteString("## Document\n")
	b.WriteString(strings.TrimSpace(in.doc.Text))
	b.WriteString("\n\n## Clinical entities\n")
	b.WriteString(clinical.FormatEntities(in.entities))
	b.WriteString("\n\n## Guideline context\n")
	if len(in.context) == 0 {
		b.WriteString("(none)\n")
	}
	for i, hit := range in.context {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, hit.SourceID, hit.Text)
	}

	b.WriteString("\n## Response protocol\n")
	if in.searchesLeft > 0 {
		fmt.Fprintf(&b, "If you need more guideline context, reply with one line: %s <query>\n", SearchDirective)
		fmt.Fprintf(&b, "Searches remaining: %d\n", in.searchesLeft)
	} else {
		b.WriteString("No searches remain. Answer now.\n")
	}
	b.WriteString(`Otherwise reply with only a JSON object: {"findings": [{"title": "...", "detail": "...", ` +
		`"category": "...", "severity": "...", "suggestion": "...", "evidence": "...", "confidence": "high|medium|low"}]}` + "\n")
	b.WriteString("Use an empty findings array when the note is compliant.\n")
	if in.previousRejected {
		b.WriteString("Your previous reply could not be parsed. Follow the protocol exactly.\n")
	}
	b.WriteString("\n")
	b.WriteString(AnalysisMarker)
	b.WriteString("\n")
	return b.String()
}

// stripEcho keeps only the text after the last analysis marker.
func stripEcho(output string) string {
	if i := strings.LastIndex(output, AnalysisMarker); i >= 0 {
		output = output[i+len(AnalysisMarker):]
	}
	return strings.TrimSpace(output)
}
