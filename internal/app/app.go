// Package app builds the long-lived components of a kansa process from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/clinical"
	"github.com/hyperjump/kansa/internal/compliance"
	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/extract"
	"github.com/hyperjump/kansa/internal/guideline"
	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/metrics"
	"github.com/hyperjump/kansa/internal/retrieval"
	"github.com/hyperjump/kansa/internal/rules"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Context holds every component of one process. Build it once with New and release it
// with Close.
type Context struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Collector
	History   *storage.SQLiteStorage
	Extractor *extract.Extractor

	RuleSet *rules.RuleSet
	Engine  *rules.Engine

	Embedder     embedding.Embedder
	Guidelines   *guideline.Index
	Generator    llm.Generator
	Orchestrator *retrieval.Orchestrator

	Service *compliance.Service
}

// Option overrides a component that would otherwise be built from configuration.
type Option func(*options)

type options struct {
	generator llm.Generator
	embedder  embedding.Embedder
}

// WithGenerator uses g instead of the configured generation provider.
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithEmbedder uses e instead of the configured embedding provider.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// New builds the context for cfg.Analysis.Mode. The rule store is loaded for rules and
// hybrid modes; the guideline index, generator and orchestrator for retrieval and hybrid.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Context, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger = utils.OrNop(logger)
	c := &Context{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics.NewCollector(cfg.Metrics.Namespace),
		Extractor: extract.NewExtractor(),
	}

	history, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	c.History = history

	mode := cfg.Analysis.Mode
	if mode == compliance.ModeRules || mode == compliance.ModeHybrid {
		set, engine, err := LoadRules(cfg, logger, c.Metrics)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.RuleSet, c.Engine = set, engine
	}

	var retriever compliance.Retriever
	if cfg.NeedsRetrieval() {
		if err := c.buildRetrieval(ctx, o); err != nil {
			c.Close()
			return nil, err
		}
		retriever = c.Orchestrator
	}

	var evaluator compliance.RuleEvaluator
	if c.Engine != nil {
		evaluator = c.Engine
	}
	c.Service = compliance.New(mode, evaluator, retriever,
		compliance.WithLogger(logger.Named("compliance")),
		compliance.WithMetrics(c.Metrics),
		compliance.WithHistory(c.History),
		compliance.WithDefaultDiscipline(cfg.Analysis.DefaultDiscipline),
		compliance.WithClassifier(clinical.NewKeywordClassifier()),
	)
	return c, nil
}

func (c *Context) buildRetrieval(ctx context.Context, o options) error {
	cfg := c.Config
	embedder := o.embedder
	if embedder == nil {
		e, err := embedding.New(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = e
	}
	c.Embedder = embedder

	index, err := OpenGuidelines(ctx, cfg, embedder, c.Extractor, c.Logger)
	if err != nil {
		return err
	}
	c.Guidelines = index

	generator := o.generator
	if generator == nil {
		g, err := llm.New(cfg.Generation)
		if err != nil {
			return fmt.Errorf("failed to create generator: %w", err)
		}
		generator = g
	}
	c.Generator = generator

	c.Orchestrator = retrieval.New(index, generator,
		clinical.NewPatternRecognizer(), clinical.NewKeywordClassifier(), cfg.Generation,
		retrieval.WithTopK(cfg.Guidelines.TopK),
		retrieval.WithLogger(c.Logger.Named("retrieval")),
		retrieval.WithMetrics(c.Metrics),
	)
	return nil
}

// LoadRules loads the configured rule store and builds an engine over it.
func LoadRules(cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) (*rules.RuleSet, *rules.Engine, error) {
	logger = utils.OrNop(logger)
	loader := rules.NewLoader(
		rules.WithLoaderLogger(logger.Named("rules")),
		rules.WithExtensions(cfg.Rules.Extensions),
	)
	set, err := loader.LoadRules(cfg.Rules.Directory)
	if err != nil {
		return nil, nil, err
	}
	engine := rules.NewEngine(set.Rules,
		rules.WithStrict(cfg.Rules.Strict),
		rules.WithLogger(logger.Named("rules")),
		rules.WithMetrics(collector),
	)
	return set, engine, nil
}

// OpenGuidelines builds or reuses the guideline index for cfg.Guidelines.
func OpenGuidelines(ctx context.Context, cfg *config.Config, embedder embedding.Embedder, reader guideline.SourceReader, logger *zap.Logger) (*guideline.Index, error) {
	logger = utils.OrNop(logger)
	index := guideline.New(cfg.Guidelines, embedder, reader, guideline.WithLogger(logger.Named("guidelines")))
	if err := index.Load(ctx); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to load guideline index: %w", err)
	}
	return index, nil
}

// Close releases every component. It is safe to call on a partially built context.
func (c *Context) Close() error {
	var errs []error
	if c.Generator != nil {
		errs = append(errs, c.Generator.Close())
	}
	if c.Guidelines != nil {
		errs = append(errs, c.Guidelines.Close())
	}
	if c.Embedder != nil {
		errs = append(errs, c.Embedder.Close())
	}
	if c.History != nil {
		errs = append(errs, c.History.Close())
	}
	return errors.Join(errs...)
}

// WriteMetrics writes the metrics textfile when one is configured.
func (c *Context) WriteMetrics() {
	if err := c.Metrics.WriteTextfile(c.Config.Metrics.Textfile); err != nil {
		c.Logger.Warn("Failed to write metrics", zap.Error(err))
	}
}
