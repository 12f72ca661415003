// Package metrics records analysis metrics in a private Prometheus registry.
//
// Metrics:
//   - kansa_analyses_total: analyses by mode and status
//   - kansa_analysis_duration_seconds: analysis duration by mode
//   - kansa_findings_total: findings by source
//   - kansa_rule_hits_total: rule firings by rule URI
//   - kansa_generations_total: generator calls by outcome
//   - kansa_guideline_searches_total: guideline searches
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the analysis metrics and their registry.
type Collector struct {
	registry *prometheus.Registry

	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	findingsTotal    *prometheus.CounterVec
	ruleHitsTotal    *prometheus.CounterVec
	generationsTotal *prometheus.CounterVec
	searchesTotal    prometheus.Counter
}

// NewCollector creates a collector with metrics registered under namespace
// (default "kansa").
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "kansa"
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		analysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analyses_total",
				Help:      "Total number of document analyses",
			},
			[]string{"mode", "status"},
		),
		analysisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Duration of document analyses in seconds",
				// rule-only analyses take microseconds, model-backed ones up to minutes
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
			},
			[]string{"mode"},
		),
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of compliance findings",
			},
			[]string{"source"},
		),
		ruleHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rule_hits_total",
				Help:      "Total number of compliance rule firings",
			},
			[]string{"rule"},
		),
		generationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Total number of generator calls by decoded outcome",
			},
			[]string{"outcome"},
		),
		searchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guideline_searches_total",
				Help:      "Total number of guideline searches issued during analyses",
			},
		),
	}
	c.registry.MustRegister(
		c.analysesTotal,
		c.analysisDuration,
		c.findingsTotal,
		c.ruleHitsTotal,
		c.generationsTotal,
		c.searchesTotal,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordAnalysis records a completed analysis.
func (c *Collector) RecordAnalysis(mode, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.analysesTotal.WithLabelValues(mode, status).Inc()
	c.analysisDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordFindings adds n findings from source.
func (c *Collector) RecordFindings(source string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.findingsTotal.WithLabelValues(source).Add(float64(n))
}

// RecordRuleHit records one firing of the rule with the given URI.
func (c *Collector) RecordRuleHit(uri string) {
	if c == nil {
		return
	}
	c.ruleHitsTotal.WithLabelValues(uri).Inc()
}

// RecordGeneration records one generator call; outcome is answer, search, malformed or error.
func (c *Collector) RecordGeneration(outcome string) {
	if c == nil {
		return
	}
	c.generationsTotal.WithLabelValues(outcome).Inc()
}

// RecordSearch records one guideline search.
func (c *Collector) RecordSearch() {
	if c == nil {
		return
	}
	c.searchesTotal.Inc()
}

// WriteTextfile writes all metrics in the text exposition format to path, for pickup by a
// node exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
