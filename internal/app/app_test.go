package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/rules"
)

const signatureRule = `prefixes:
  ex: "http://example.com/speech#"
  r: "http://example.com/speech/rules#"
triples:
  - [r:MissingSignature, a, ex:ComplianceRule]
  - [r:MissingSignature, ex:hasIssueTitle, "Provider signature/date possibly missing"]
  - [r:MissingSignature, ex:hasDiscipline, pt]
  - [r:MissingSignature, ex:hasNegativeKeywords, r:SignatureTerms]
  - [r:SignatureTerms, ex:hasKeyword, signature]
`

func testConfig(t *testing.T, mode string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	rulesDir := filepath.Join(dir, "rules")
	if err := os.MkdirAll(rulesDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(rulesDir, "signature.yaml"), []byte(signatureRule), 0644); err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(dir, "ch15.txt")
	guideline := "Services must be reasonable and necessary and require the skills of a therapist.\n\n" +
		"Maintenance programs are covered only when skilled care is required to carry them out safely."
	if err := os.WriteFile(source, []byte(guideline), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Analysis.Mode = mode
	cfg.Rules.Directory = rulesDir
	cfg.Storage.DatabasePath = filepath.Join(dir, "db", "analyses.db")
	cfg.Guidelines.Sources = []string{source}
	cfg.Guidelines.CacheDir = filepath.Join(dir, "cache")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 16
	config.ApplyDefaults(cfg)
	return cfg
}

func TestNew_RulesMode(t *testing.T) {
	cfg := testConfig(t, "rules")
	c, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Orchestrator != nil || c.Guidelines != nil {
		t.Error("rules mode should not build the retrieval path")
	}
	if len(c.RuleSet.Rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(c.RuleSet.Rules))
	}

	result, err := c.Service.Analyze(context.Background(), models.TherapyDocument{ID: "d1", Text: "Patient walked 50 feet.", Discipline: "PT"})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsCompliant || result.Findings[0].Title != "Provider signature/date possibly missing" {
		t.Errorf("unexpected result: %+v", result)
	}

	n, err := c.History.CountAnalyses(context.Background())
	if err != nil || n != 1 {
		t.Errorf("history count = %d, %v; want 1", n, err)
	}
}

func TestNew_HybridMode(t *testing.T) {
	cfg := testConfig(t, "hybrid")
	gen := llm.NewScriptedGenerator(
		"[SEARCH] maintenance program coverage",
		`{"findings":[{"title":"Maintenance without skilled need","severity":"flag"}]}`,
	)
	c, err := New(context.Background(), cfg, nil, WithGenerator(gen), WithEmbedder(embedding.NewMockEmbedder(16)))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if !c.Guidelines.Ready() || c.Guidelines.Size() == 0 {
		t.Fatalf("guideline index not loaded: ready=%v size=%d", c.Guidelines.Ready(), c.Guidelines.Size())
	}

	result, err := c.Service.Analyze(context.Background(), models.TherapyDocument{
		Text:       "Continue maintenance program. Signature on file.",
		Discipline: "pt",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Source != models.SourceModel {
		t.Fatalf("findings = %+v, want one model finding", result.Findings)
	}
	if result.Iterations != 1 || gen.Calls() != 2 {
		t.Errorf("iterations = %d, calls = %d; want 1 search and 2 generations", result.Iterations, gen.Calls())
	}
	if len(result.Guidelines) == 0 {
		t.Error("expected guideline context on the result")
	}
	if !strings.Contains(gen.Prompts()[1], "Maintenance programs are covered") {
		t.Errorf("second prompt lacks the searched guideline:\n%s", gen.Prompts()[1])
	}
}

func TestNew_MissingRuleDirectory(t *testing.T) {
	cfg := testConfig(t, "rules")
	cfg.Rules.Directory = filepath.Join(t.TempDir(), "nope")
	_, err := New(context.Background(), cfg, nil)
	if !errors.Is(err, rules.ErrRuleDirectoryMissing) {
		t.Fatalf("err = %v, want ErrRuleDirectoryMissing", err)
	}
}

func TestWriteMetrics(t *testing.T) {
	cfg := testConfig(t, "rules")
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "prom", "kansa.prom")
	c, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Service.Analyze(context.Background(), models.TherapyDocument{Text: "Signed by therapist signature.", Discipline: "pt"}); err != nil {
		t.Fatal(err)
	}
	c.WriteMetrics()
	data, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "kansa_analyses_total") {
		t.Errorf("textfile missing analyses counter:\n%s", data)
	}
}
