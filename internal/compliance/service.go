// Package compliance is the entry point for analyzing a therapy document. It runs the
// rule engine, the retrieval loop or both, depending on the analysis mode.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/clinical"
	"github.com/hyperjump/kansa/internal/metrics"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/retrieval"
	"github.com/hyperjump/kansa/internal/storage"
)

// Analysis modes.
const (
	ModeRules     = "rules"
	ModeRetrieval = "retrieval"
	ModeHybrid    = "hybrid"
)

var (
	// ErrMissingDocument is returned for a document without text.
	ErrMissingDocument = errors.New("missing document text")

	// ErrModeUnavailable is returned when the mode needs a component that was not configured.
	ErrModeUnavailable = errors.New("analysis mode unavailable")
)

// RuleEvaluator produces rule findings for a document, in rule load order.
type RuleEvaluator interface {
	Findings(doc models.TherapyDocument) []models.ComplianceFinding
}

// Retriever runs the model-driven retrieval loop for a document.
type Retriever interface {
	Analyze(ctx context.Context, doc models.TherapyDocument) (*retrieval.Analysis, error)
}

// Service analyzes documents. It is safe for concurrent use when its components are.
type Service struct {
	mode              string
	rules             RuleEvaluator
	retriever         Retriever
	defaultDiscipline string
	classifier        clinical.DocumentClassifier
	history           storage.AnalysisStore
	logger            *zap.Logger
	metrics           *metrics.Collector
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records analyses in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) {
		s.metrics = c
	}
}

// WithHistory saves every result to store.
func WithHistory(store storage.AnalysisStore) Option {
	return func(s *Service) {
		s.history = store
	}
}

// WithDefaultDiscipline sets the discipline used for documents that carry none.
func WithDefaultDiscipline(discipline string) Option {
	return func(s *Service) {
		s.defaultDiscipline = discipline
	}
}

// WithClassifier assigns a document type to untyped documents before the rule pass, so
// rules scoped to a document type can fire.
func WithClassifier(c clinical.DocumentClassifier) Option {
	return func(s *Service) {
		s.classifier = c
	}
}

// New creates a service. rules or retriever may be nil when mode does not need them.
func New(mode string, rules RuleEvaluator, retriever Retriever, opts ...Option) *Service {
	if mode == "" {
		mode = ModeRules
	}
	s := &Service{
		mode:      mode,
		rules:     rules,
		retriever: retriever,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mode returns the analysis mode.
func (s *Service) Mode() string {
	return s.mode
}

// Analyze checks doc and returns its compliance result. In hybrid mode rule findings come
// first, followed by model findings.
func (s *Service) Analyze(ctx context.Context, doc models.TherapyDocument) (*models.ComplianceResult, error) {
	if doc.Blank() {
		return nil, ErrMissingDocument
	}
	if err := s.checkMode(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Discipline) == "" {
		doc.Discipline = s.defaultDiscipline
	}
	start := time.Now()

	var findings []models.ComplianceFinding
	if s.mode == ModeRules || s.mode == ModeHybrid {
		s.classify(ctx, &doc)
		findings = append(findings, s.rules.Findings(doc)...)
	}
	ruleCount := len(findings)

	var analysis *retrieval.Analysis
	if s.mode == ModeRetrieval || s.mode == ModeHybrid {
		a, err := s.retriever.Analyze(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("retrieval analysis: %w", err)
		}
		analysis = a
		if a.Answered() {
			for _, raw := range a.Findings {
				findings = append(findings, ModelFinding(raw))
			}
		} else {
			findings = append(findings, IncompleteFinding(a))
		}
	}

	result := models.NewComplianceResult(doc, s.mode, findings)
	if analysis != nil {
		result.Iterations = analysis.Iterations
		result.Guidelines = analysis.Context
		if result.Document.DocumentType == "" {
			result.Document.DocumentType = analysis.DocumentType
		}
		if !analysis.Answered() {
			result.Status = models.StatusIncomplete
		}
	}

	s.metrics.RecordAnalysis(s.mode, result.Status, time.Since(start))
	s.metrics.RecordFindings(models.SourceRule, ruleCount)
	s.metrics.RecordFindings(models.SourceModel, len(findings)-ruleCount)
	s.logger.Info("Analyzed document",
		zap.String("id", result.ID),
		zap.String("document", doc.ID),
		zap.String("mode", s.mode),
		zap.String("status", result.Status),
		zap.Int("findings", len(result.Findings)),
		zap.Duration("duration", time.Since(start)))

	if s.history != nil {
		if err := s.history.SaveAnalysis(ctx, result); err != nil {
			s.logger.Warn("Failed to save analysis history", zap.String("id", result.ID), zap.Error(err))
		}
	}
	return result, nil
}

// classify fills in doc.DocumentType when it is empty and the classifier recognizes the note.
func (s *Service) classify(ctx context.Context, doc *models.TherapyDocument) {
	if s.classifier == nil || strings.TrimSpace(doc.DocumentType) != "" {
		return
	}
	t, err := s.classifier.Classify(ctx, doc.Text)
	if err != nil {
		s.logger.Warn("Document classification failed", zap.String("document", doc.ID), zap.Error(err))
		return
	}
	if t != "" && t != clinical.TypeUnknown {
		doc.DocumentType = t
	}
}

func (s *Service) checkMode() error {
	switch s.mode {
	case ModeRules:
		if s.rules == nil {
			return fmt.Errorf("%w: %s needs a rule engine", ErrModeUnavailable, s.mode)
		}
	case ModeRetrieval:
		if s.retriever == nil {
			return fmt.Errorf("%w: %s needs a retrieval orchestrator", ErrModeUnavailable, s.mode)
		}
	case ModeHybrid:
		if s.rules == nil || s.retriever == nil {
			return fmt.Errorf("%w: %s needs a rule engine and a retrieval orchestrator", ErrModeUnavailable, s.mode)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrModeUnavailable, s.mode)
	}
	return nil
}
