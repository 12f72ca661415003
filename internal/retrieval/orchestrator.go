// Package retrieval runs the bounded search-and-reason loop that lets a generative model
// pull guideline context before answering with compliance findings.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/clinical"
	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/metrics"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// ErrEmptyDocument is returned for a document with no text.
var ErrEmptyDocument = errors.New("document text is empty")

// State is the position of an analysis in the retrieval loop.
type State string

const (
	StateInit      State = "init"
	StateSearching State = "searching"
	StateAnswered  State = "answered"
	StateExhausted State = "exhausted"
)

// Reason explains an exhausted analysis.
type Reason string

const (
	ReasonBudget    Reason = "budget"
	ReasonMalformed Reason = "malformed"
	ReasonTimeout   Reason = "timeout"
)

// maxConsecutiveFailures is the number of unusable generations in a row that ends the loop.
const maxConsecutiveFailures = 2

// GuidelineSearcher finds guideline chunks relevant to a query.
type GuidelineSearcher interface {
	Search(ctx context.Context, query string, k int) []models.GuidelineHit
}

// Analysis is the outcome of one retrieval loop.
type Analysis struct {
	State        State
	Reason       Reason
	Result       map[string]any
	Findings     []map[string]any
	Entities     []clinical.Entity
	DocumentType string
	Context      []models.GuidelineHit
	Iterations   int
	Generations  int
	Searches     int
	LastContent  string
	LastError    error
}

// Answered reports whether the model produced a valid answer.
func (a *Analysis) Answered() bool {
	return a.State == StateAnswered
}

// Orchestrator drives analyses. It holds no state between calls and may be shared.
type Orchestrator struct {
	searcher      GuidelineSearcher
	generator     llm.Generator
	extractor     clinical.EntityExtractor
	classifier    clinical.DocumentClassifier
	maxIterations int
	timeout       time.Duration
	topK          int
	logger        *zap.Logger
	metrics       *metrics.Collector
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records generations and searches in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// WithTopK sets the number of guideline chunks requested per search (default 5).
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// New creates an orchestrator. cfg supplies the generation budget (MaxIterations, at
// least 1) and the per-analysis timeout (0 disables it).
func New(searcher GuidelineSearcher, generator llm.Generator, extractor clinical.EntityExtractor,
	classifier clinical.DocumentClassifier, cfg config.GenerationConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher:      searcher,
		generator:     generator,
		extractor:     extractor,
		classifier:    classifier,
		maxIterations: cfg.MaxIterations,
		timeout:       cfg.Timeout,
		topK:          5,
		logger:        zap.NewNop(),
	}
	if o.maxIterations < 1 {
		o.maxIterations = 1
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxIterations returns the generation budget per analysis.
func (o *Orchestrator) MaxIterations() int {
	return o.maxIterations
}

// Analyze runs the retrieval loop for doc. The only error is ErrEmptyDocument; model
// failures, budget exhaustion and timeouts are reported through Analysis.State.
func (o *Orchestrator) Analyze(ctx context.Context, doc models.TherapyDocument) (*Analysis, error) {
	if doc.Blank() {
		return nil, ErrEmptyDocument
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	a := &Analysis{State: StateInit}
	session := NewSession()
	o.prepare(ctx, doc, a)
	if ctx.Err() != nil {
		return o.exhaust(a, session, ReasonTimeout), nil
	}

	seed := strings.Join(nonEmpty(doc.Discipline, a.DocumentType, doc.Text), " ")
	o.search(ctx, seed, a, session)
	a.State = StateSearching

	failures := 0
	for a.Generations < o.maxIterations {
		if ctx.Err() != nil {
			return o.exhaust(a, session, ReasonTimeout), nil
		}
		prompt := buildPrompt(promptInput{
			doc:              doc,
			documentType:     a.DocumentType,
			entities:         a.Entities,
			context:          session.Hits(),
			searchesLeft:     o.maxIterations - a.Generations - 1,
			previousRejected: failures > 0,
		})
		output, err := o.generator.Generate(ctx, prompt)
		a.Generations++
		if err != nil {
			o.metrics.RecordGeneration("error")
			a.LastError = err
			if ctx.Err() != nil {
				return o.exhaust(a, session, ReasonTimeout), nil
			}
			o.logger.Warn("Generation failed", zap.Int("generation", a.Generations), zap.Error(err))
			if failures++; failures >= maxConsecutiveFailures {
				return o.exhaust(a, session, ReasonMalformed), nil
			}
			continue
		}

		content := stripEcho(output)
		a.LastContent = content
		switch r := Decode(content).(type) {
		case Answer:
			o.metrics.RecordGeneration("answer")
			a.State = StateAnswered
			a.Result = r.Result
			a.Findings = r.Findings
			a.Context = session.Hits()
			o.logger.Debug("Model answered",
				zap.Int("generations", a.Generations),
				zap.Int("findings", len(r.Findings)))
			return a, nil
		case SearchRequest:
			o.metrics.RecordGeneration("search")
			failures = 0
			if ctx.Err() != nil {
				return o.exhaust(a, session, ReasonTimeout), nil
			}
			o.search(ctx, r.Query, a, session)
			a.Iterations++
		case Malformed:
			o.metrics.RecordGeneration("malformed")
			a.LastError = r.Err
			o.logger.Warn("Malformed model output",
				zap.Int("generation", a.Generations),
				zap.Error(r.Err))
			if failures++; failures >= maxConsecutiveFailures {
				return o.exhaust(a, session, ReasonMalformed), nil
			}
		}
	}
	return o.exhaust(a, session, ReasonBudget), nil
}

// prepare extracts entities and classifies the document. Failures degrade to no entities
// and an unknown type.
func (o *Orchestrator) prepare(ctx context.Context, doc models.TherapyDocument, a *Analysis) {
	a.Entities = []clinical.Entity{}
	if o.extractor != nil {
		entities, err := o.extractor.ExtractEntities(ctx, doc.Text)
		if err != nil {
			o.logger.Warn("Entity extraction failed", zap.Error(err))
		} else {
			a.Entities = entities
		}
	}

	classified := clinical.TypeUnknown
	if o.classifier != nil {
		t, err := o.classifier.Classify(ctx, doc.Text)
		if err != nil {
			o.logger.Warn("Document classification failed", zap.Error(err))
		} else if t != "" {
			classified = t
		}
	}
	a.DocumentType = doc.DocumentType
	if a.DocumentType == "" {
		a.DocumentType = classified
	}
}

func (o *Orchestrator) search(ctx context.Context, query string, a *Analysis, session *Session) {
	hits := o.searcher.Search(ctx, query, o.topK)
	a.Searches++
	o.metrics.RecordSearch()
	added := session.Add(hits)
	o.logger.Debug("Guideline search",
		zap.String("query", utils.Truncate(query, 120)),
		zap.Int("hits", len(hits)),
		zap.Int("added", added))
}

func (o *Orchestrator) exhaust(a *Analysis, session *Session, reason Reason) *Analysis {
	a.State = StateExhausted
	a.Reason = reason
	a.Context = session.Hits()
	o.logger.Warn("Analysis exhausted",
		zap.String("reason", string(reason)),
		zap.Int("generations", a.Generations),
		zap.Int("searches", a.Searches))
	return a
}

// Summary describes an exhausted analysis for the degraded finding.
func (a *Analysis) Summary() string {
	switch a.Reason {
	case ReasonTimeout:
		return fmt.Sprintf("analysis timed out after %d generation(s)", a.Generations)
	case ReasonMalformed:
		return fmt.Sprintf("model output could not be parsed after %d generation(s)", a.Generations)
	default:
		return fmt.Sprintf("model did not answer within %d generation(s)", a.Generations)
	}
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
