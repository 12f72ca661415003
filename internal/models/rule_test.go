package models

import (
	"strings"
	"testing"
)

func TestNewKeywordPredicate_Mode(t *testing.T) {
	if got := NewKeywordPredicate(nil, []string{"signature"}).Mode(); got != ModeRequiredPresence {
		t.Errorf("empty positive: mode = %s, want %s", got, ModeRequiredPresence)
	}
	if got := NewKeywordPredicate([]string{" ", ""}, []string{"signature"}).Mode(); got != ModeRequiredPresence {
		t.Errorf("blank positive terms: mode = %s, want %s", got, ModeRequiredPresence)
	}
	if got := NewKeywordPredicate([]string{"pain"}, nil).Mode(); got != ModeTriggerWithExclusion {
		t.Errorf("non-empty positive: mode = %s, want %s", got, ModeTriggerWithExclusion)
	}
}

func TestKeywordPredicate_Fires(t *testing.T) {
	tests := []struct {
		name     string
		positive []string
		negative []string
		text     string
		want     bool
	}{
		{"required absent fires", nil, []string{"Signature", "signed"}, "Patient tolerated treatment well.", true},
		{"required present is case-insensitive", nil, []string{"Signature"}, "SIGNATURE: J. Smith PT", false},
		{"required with no terms always fires", nil, nil, "anything", true},
		{"trigger without exclusion fires", []string{"pain"}, []string{"pain scale"}, "Patient reports pain in knee.", true},
		{"trigger with exclusion does not fire", []string{"pain"}, []string{"pain scale"}, "Pain scale 4/10.", false},
		{"no trigger does not fire", []string{"pain"}, nil, "Patient ambulated 200 ft.", false},
		{"substring match", []string{"goal"}, nil, "Long-term goals reviewed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewKeywordPredicate(tt.positive, tt.negative)
			if got := p.Fires(strings.ToLower(tt.text)); got != tt.want {
				t.Errorf("Fires() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Adding an exclusion term that occurs in the text can only turn a firing trigger rule off.
func TestTriggerWithExclusion_ExclusionIsMonotone(t *testing.T) {
	text := "patient reports pain; pain scale used"
	base := NewKeywordPredicate([]string{"pain"}, nil)
	if !base.Fires(text) {
		t.Fatal("base rule should fire")
	}
	withExcl := NewKeywordPredicate([]string{"pain"}, []string{"pain scale"})
	if withExcl.Fires(text) {
		t.Error("rule should stop firing once an occurring exclusion term is added")
	}
}

func TestTriggerWithExclusion_FirstTrigger(t *testing.T) {
	p := TriggerWithExclusion{TriggerTerms: []string{"fall", "pain"}}
	term, at := p.FirstTrigger("reports pain after fall")
	if term != "fall" || at != 19 {
		t.Errorf("FirstTrigger = (%q, %d), want (fall, 19)", term, at)
	}
	if _, at := p.FirstTrigger("no triggers here"); at != -1 {
		t.Errorf("expected -1, got %d", at)
	}
}

func TestComplianceRule_AppliesTo(t *testing.T) {
	wildcard := &ComplianceRule{Discipline: "pt", DocumentType: AnyDocumentType}
	eval := &ComplianceRule{Discipline: "pt", DocumentType: "evaluation"}
	if !wildcard.AppliesTo("pt", "progress_note") {
		t.Error("any document type should match every type")
	}
	if wildcard.AppliesTo("ot", "progress_note") {
		t.Error("discipline mismatch should not apply")
	}
	if eval.AppliesTo("pt", "progress_note") {
		t.Error("document type mismatch should not apply")
	}
	if !eval.AppliesTo("pt", "evaluation") {
		t.Error("matching document type should apply")
	}
	mixed := &ComplianceRule{Discipline: "PT", DocumentType: "Any"}
	if !mixed.AppliesTo("pt", "progress_note") {
		t.Error("scope comparison should ignore case")
	}
}

func TestComplianceRule_RiskLevel(t *testing.T) {
	r := &ComplianceRule{Severity: "finding", StrictSeverity: "violation"}
	if r.RiskLevel(false) != "finding" || r.RiskLevel(true) != "violation" {
		t.Errorf("unexpected risk levels %s/%s", r.RiskLevel(false), r.RiskLevel(true))
	}
	r.StrictSeverity = ""
	if r.RiskLevel(true) != "finding" {
		t.Error("strict mode without strict severity falls back to severity")
	}
}

func TestComplianceResult_IsCompliantInvariant(t *testing.T) {
	doc := TherapyDocument{Text: "x", Discipline: "pt"}
	r := NewComplianceResult(doc, "rules", nil)
	if !r.IsCompliant || r.Findings == nil {
		t.Fatalf("empty result should be compliant with non-nil findings: %+v", r)
	}
	if r.ID == "" || r.Status != StatusComplete {
		t.Errorf("unexpected id/status: %q %q", r.ID, r.Status)
	}
	r.AddFindings(ComplianceFinding{Title: "a", FinancialImpact: 50}, ComplianceFinding{Title: "b", FinancialImpact: 25})
	if r.IsCompliant {
		t.Error("result with findings must not be compliant")
	}
	if r.FinancialImpact() != 75 {
		t.Errorf("FinancialImpact() = %d, want 75", r.FinancialImpact())
	}
}
