package models

import (
	"time"

	"github.com/google/uuid"
)

// Finding sources.
const (
	SourceRule  = "rule"
	SourceModel = "model"
)

// Analysis status values.
const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
)

// ComplianceFinding is one detected compliance issue.
type ComplianceFinding struct {
	Source          string          `json:"source"`
	Rule            *ComplianceRule `json:"-"`
	RuleURI         string          `json:"rule_uri,omitempty"`
	Title           string          `json:"title"`
	Detail          string          `json:"detail,omitempty"`
	Category        string          `json:"category,omitempty"`
	Suggestion      string          `json:"suggestion,omitempty"`
	Evidence        string          `json:"evidence,omitempty"`
	RiskLevel       string          `json:"risk_level"`
	FinancialImpact int             `json:"financial_impact,omitempty"`
	Confidence      string          `json:"confidence,omitempty"`
	Raw             map[string]any  `json:"raw,omitempty"`
}

// ComplianceResult is the outcome of analyzing one document.
// IsCompliant is true exactly when Findings is empty.
type ComplianceResult struct {
	ID          string              `json:"id"`
	Document    TherapyDocument     `json:"document"`
	Mode        string              `json:"mode"`
	Findings    []ComplianceFinding `json:"findings"`
	IsCompliant bool                `json:"is_compliant"`
	Status      string              `json:"status"`
	Iterations  int                 `json:"iterations,omitempty"`
	Guidelines  []GuidelineHit      `json:"guidelines,omitempty"`
	AnalyzedAt  time.Time           `json:"analyzed_at"`
}

// NewComplianceResult builds a complete result for doc. Findings may be nil.
func NewComplianceResult(doc TherapyDocument, mode string, findings []ComplianceFinding) *ComplianceResult {
	if findings == nil {
		findings = []ComplianceFinding{}
	}
	return &ComplianceResult{
		ID:          uuid.NewString(),
		Document:    doc,
		Mode:        mode,
		Findings:    findings,
		IsCompliant: len(findings) == 0,
		Status:      StatusComplete,
		AnalyzedAt:  time.Now().UTC(),
	}
}

// AddFindings appends findings and keeps IsCompliant consistent.
func (r *ComplianceResult) AddFindings(findings ...ComplianceFinding) {
	r.Findings = append(r.Findings, findings...)
	r.IsCompliant = len(r.Findings) == 0
}

// FinancialImpact sums the financial impact of all findings.
func (r *ComplianceResult) FinancialImpact() int {
	total := 0
	for _, f := range r.Findings {
		total += f.FinancialImpact
	}
	return total
}

// AnalysisRecord is the persisted summary of a ComplianceResult.
type AnalysisRecord struct {
	ID           string    `json:"id" db:"id"`
	DocumentID   string    `json:"document_id" db:"document_id"`
	Discipline   string    `json:"discipline" db:"discipline"`
	DocumentType string    `json:"document_type" db:"document_type"`
	Mode         string    `json:"mode" db:"mode"`
	Status       string    `json:"status" db:"status"`
	IsCompliant  bool      `json:"is_compliant" db:"is_compliant"`
	FindingCount int       `json:"finding_count" db:"finding_count"`
	ResultJSON   string    `json:"-" db:"result_json"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
