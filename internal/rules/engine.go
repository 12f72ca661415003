package rules

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/metrics"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// evidenceRadius is the number of runes kept on each side of a trigger term.
const evidenceRadius = 80

// Engine evaluates documents against a loaded rule set. It is read-only after construction
// and safe for concurrent use.
type Engine struct {
	rules   []*models.ComplianceRule
	strict  bool
	logger  *zap.Logger
	metrics *metrics.Collector
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStrict makes firing rules report their strict severity when one is set.
func WithStrict(strict bool) EngineOption {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records rule firings in c.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = c
	}
}

// NewEngine creates an engine over rules, which are evaluated in the given order.
// Each rule is copied with its discipline and document type lower-cased (an empty type
// becomes "any") and, when it has no predicate, one derived from its keyword sets.
func NewEngine(rules []*models.ComplianceRule, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:  make([]*models.ComplianceRule, 0, len(rules)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range rules {
		if r != nil {
			e.rules = append(e.rules, normalizeRule(r))
		}
	}
	return e
}

func normalizeRule(r *models.ComplianceRule) *models.ComplianceRule {
	c := *r
	c.Discipline = strings.ToLower(strings.TrimSpace(c.Discipline))
	c.DocumentType = strings.ToLower(strings.TrimSpace(c.DocumentType))
	if c.DocumentType == "" {
		c.DocumentType = models.AnyDocumentType
	}
	if c.Severity == "" {
		c.Severity = defaultSeverity
	}
	if c.Predicate == nil {
		c.Predicate = models.NewKeywordPredicate(c.PositiveKeywords, c.NegativeKeywords)
	}
	return &c
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []*models.ComplianceRule {
	return e.rules
}

// EvaluateDocument returns one finding per rule that applies to the document's discipline
// and type and whose keyword predicate fires. Findings follow rule load order.
func (e *Engine) EvaluateDocument(doc models.TherapyDocument) *models.ComplianceResult {
	return models.NewComplianceResult(doc, "rules", e.Findings(doc))
}

// Findings evaluates doc and returns the findings without wrapping them in a result.
func (e *Engine) Findings(doc models.TherapyDocument) []models.ComplianceFinding {
	discipline := strings.ToLower(strings.TrimSpace(doc.Discipline))
	docType := strings.ToLower(strings.TrimSpace(doc.DocumentType))
	lower := strings.ToLower(doc.Text)

	findings := []models.ComplianceFinding{}
	for _, rule := range e.rules {
		if !rule.AppliesTo(discipline, docType) {
			continue
		}
		if !rule.Predicate.Fires(lower) {
			continue
		}
		e.logger.Debug("Rule fired",
			zap.String("rule", rule.URI),
			zap.String("mode", string(rule.Predicate.Mode())))
		e.metrics.RecordRuleHit(rule.URI)
		findings = append(findings, e.finding(rule, doc.Text, lower))
	}
	return findings
}

func (e *Engine) finding(rule *models.ComplianceRule, text, lower string) models.ComplianceFinding {
	return models.ComplianceFinding{
		Source:          models.SourceRule,
		Rule:            rule,
		RuleURI:         rule.URI,
		Title:           rule.IssueTitle,
		Detail:          rule.IssueDetail,
		Category:        rule.IssueCategory,
		Suggestion:      rule.Suggestion,
		Evidence:        evidence(rule.Predicate, text, lower),
		RiskLevel:       rule.RiskLevel(e.strict),
		FinancialImpact: rule.FinancialImpact,
	}
}

// evidence quotes the text around the first trigger term, or the start of the document
// when the rule fired on absent terms.
func evidence(p models.KeywordPredicate, text, lower string) string {
	if trigger, ok := p.(models.TriggerWithExclusion); ok {
		// Lower-casing can change byte lengths; only use the offset when it is safe.
		if _, pos := trigger.FirstTrigger(lower); pos >= 0 && len(lower) == len(text) {
			return utils.Snippet(text, pos, evidenceRadius)
		}
	}
	return utils.Snippet(text, 0, 2*evidenceRadius)
}
