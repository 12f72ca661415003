package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kansa/internal/clinical"
	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/models"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	hits    func(query string) []models.GuidelineHit
}

func (s *fakeSearcher) Search(ctx context.Context, query string, k int) []models.GuidelineHit {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.hits == nil {
		return []models.GuidelineHit{}
	}
	return s.hits(query)
}

type failingExtractor struct{}

func (failingExtractor) ExtractEntities(ctx context.Context, text string) ([]clinical.Entity, error) {
	return nil, errors.New("ner unavailable")
}

var testDoc = models.TherapyDocument{
	ID:         "doc-1",
	Text:       "Patient seen 2x/week. Pain decreased. Continue plan.",
	Discipline: "pt",
}

func newTestOrchestrator(searcher GuidelineSearcher, gen llm.Generator, maxIterations int) *Orchestrator {
	return New(searcher, gen, clinical.NewPatternRecognizer(), clinical.NewKeywordClassifier(),
		config.GenerationConfig{MaxIterations: maxIterations})
}

func TestAnalyze_SearchThenAnswer(t *testing.T) {
	searcher := &fakeSearcher{}
	gen := llm.NewScriptedGenerator(
		"[SEARCH] find more about signatures",
		`{"findings":[{"detail":"x"}]}`,
	)
	a, err := newTestOrchestrator(searcher, gen, 3).Analyze(context.Background(), testDoc)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Answered() {
		t.Fatalf("expected answered, got %s/%s", a.State, a.Reason)
	}
	if len(searcher.queries) != 2 || a.Searches != 2 {
		t.Fatalf("expected 2 searches, got %d (%v)", len(searcher.queries), searcher.queries)
	}
	if searcher.queries[1] != "find more about signatures" {
		t.Errorf("second search = %q", searcher.queries[1])
	}
	if len(a.Findings) != 1 || a.Findings[0]["detail"] != "x" {
		t.Errorf("findings = %v", a.Findings)
	}
	if a.Iterations != 1 || a.Generations != 2 {
		t.Errorf("iterations = %d, generations = %d", a.Iterations, a.Generations)
	}
}

func TestAnalyze_SeedQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	gen := llm.NewScriptedGenerator(`{"findings":[]}`)
	doc := testDoc
	doc.DocumentType = "daily_note"
	a, err := newTestOrchestrator(searcher, gen, 1).Analyze(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	want := "pt daily_note " + doc.Text
	if len(searcher.queries) != 1 || searcher.queries[0] != want {
		t.Errorf("seed query = %v, want %q", searcher.queries, want)
	}
	if a.DocumentType != "daily_note" {
		t.Errorf("explicit document type should win, got %q", a.DocumentType)
	}
	if len(a.Findings) != 0 || !a.Answered() {
		t.Errorf("expected empty answer, got %+v", a)
	}
}

func TestAnalyze_BudgetBound(t *testing.T) {
	for _, maxIter := range []int{1, 2, 5} {
		searcher := &fakeSearcher{}
		outputs := make([]string, 10)
		for i := range outputs {
			outputs[i] = "[SEARCH] more context"
		}
		gen := llm.NewScriptedGenerator(outputs...)
		a, err := newTestOrchestrator(searcher, gen, maxIter).Analyze(context.Background(), testDoc)
		if err != nil {
			t.Fatal(err)
		}
		if a.State != StateExhausted || a.Reason != ReasonBudget {
			t.Errorf("max %d: state = %s/%s", maxIter, a.State, a.Reason)
		}
		if gen.Calls() != maxIter || a.Generations != maxIter {
			t.Errorf("max %d: generations = %d", maxIter, gen.Calls())
		}
		if a.Searches != 1+maxIter || len(searcher.queries) != 1+maxIter {
			t.Errorf("max %d: searches = %d", maxIter, a.Searches)
		}
		if a.LastContent != "[SEARCH] more context" {
			t.Errorf("last content = %q", a.LastContent)
		}
	}
}

func TestAnalyze_MalformedOutput(t *testing.T) {
	tests := []struct {
		name     string
		steps    []llm.ScriptStep
		state    State
		reason   Reason
		genCalls int
	}{
		{
			name:     "retry succeeds",
			steps:    []llm.ScriptStep{{Output: "I think it is fine"}, {Output: `{"findings":[]}`}},
			state:    StateAnswered,
			genCalls: 2,
		},
		{
			name:     "two malformed in a row",
			steps:    []llm.ScriptStep{{Output: "nope"}, {Output: `{"result": 1}`}, {Output: `{"findings":[]}`}},
			state:    StateExhausted,
			reason:   ReasonMalformed,
			genCalls: 2,
		},
		{
			name:     "generation error counts as failure",
			steps:    []llm.ScriptStep{{Err: errors.New("connection refused")}, {Output: "[1, 2]"}},
			state:    StateExhausted,
			reason:   ReasonMalformed,
			genCalls: 2,
		},
		{
			name: "search resets failure count",
			steps: []llm.ScriptStep{
				{Output: "nope"}, {Output: "[SEARCH] therapy goals"}, {Output: "nope"}, {Output: `{"findings":[{"title":"t"}]}`},
			},
			state:    StateAnswered,
			genCalls: 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := llm.NewScriptedGeneratorSteps(tt.steps...)
			a, err := newTestOrchestrator(&fakeSearcher{}, gen, 5).Analyze(context.Background(), testDoc)
			if err != nil {
				t.Fatal(err)
			}
			if a.State != tt.state || a.Reason != tt.reason {
				t.Errorf("state = %s/%s, want %s/%s", a.State, a.Reason, tt.state, tt.reason)
			}
			if gen.Calls() != tt.genCalls {
				t.Errorf("generations = %d, want %d", gen.Calls(), tt.genCalls)
			}
		})
	}
}

func TestAnalyze_RetryPromptMentionsRejection(t *testing.T) {
	gen := llm.NewScriptedGenerator("garbage", `{"findings":[]}`)
	if _, err := newTestOrchestrator(&fakeSearcher{}, gen, 3).Analyze(context.Background(), testDoc); err != nil {
		t.Fatal(err)
	}
	prompts := gen.Prompts()
	if strings.Contains(prompts[0], "could not be parsed") || !strings.Contains(prompts[1], "could not be parsed") {
		t.Error("only the retry prompt should mention the rejected reply")
	}
	for _, p := range prompts {
		if !strings.HasSuffix(strings.TrimSpace(p), AnalysisMarker) {
			t.Error("prompt should end with the analysis marker")
		}
	}
}

func TestAnalyze_Timeout(t *testing.T) {
	t.Run("canceled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		searcher := &fakeSearcher{}
		gen := llm.NewScriptedGenerator(`{"findings":[]}`)
		a, err := newTestOrchestrator(searcher, gen, 3).Analyze(ctx, testDoc)
		if err != nil {
			t.Fatal(err)
		}
		if a.State != StateExhausted || a.Reason != ReasonTimeout {
			t.Errorf("state = %s/%s", a.State, a.Reason)
		}
		if gen.Calls() != 0 || a.Searches != 0 {
			t.Errorf("no work expected, got %d generations %d searches", gen.Calls(), a.Searches)
		}
	})

	t.Run("canceled during generation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		searcher := &fakeSearcher{}
		gen := &cancelingGenerator{cancel: cancel, output: "[SEARCH] anything"}
		a, err := newTestOrchestrator(searcher, gen, 3).Analyze(ctx, testDoc)
		if err != nil {
			t.Fatal(err)
		}
		if a.Reason != ReasonTimeout || a.Generations != 1 {
			t.Errorf("state = %s/%s after %d generations", a.State, a.Reason, a.Generations)
		}
		if a.Searches != 1 {
			t.Errorf("directive after cancellation must not search, got %d searches", a.Searches)
		}
	})
}

type cancelingGenerator struct {
	cancel context.CancelFunc
	output string
}

func (g *cancelingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.cancel()
	return g.output, nil
}

func (g *cancelingGenerator) Model() string { return "canceling" }
func (g *cancelingGenerator) Close() error  { return nil }

func TestAnalyze_DeduplicatesContext(t *testing.T) {
	searcher := &fakeSearcher{hits: func(query string) []models.GuidelineHit {
		hits := []models.GuidelineHit{
			{SourceID: "ch15.pdf#0", Text: "Skilled therapy required.", Score: 0.9},
			{SourceID: "ch15.pdf#1", Text: "Plan of care certification.", Score: 0.8},
		}
		if query == "signatures" {
			hits = append(hits, models.GuidelineHit{SourceID: "ch12.pdf#4", Text: "Signatures must be legible.", Score: 0.7})
		}
		return hits
	}}
	gen := llm.NewScriptedGenerator("[SEARCH] signatures", "[SEARCH] skilled", `{"findings":[]}`)
	a, err := newTestOrchestrator(searcher, gen, 3).Analyze(context.Background(), testDoc)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, h := range a.Context {
		ids = append(ids, h.SourceID)
	}
	if strings.Join(ids, ",") != "ch15.pdf#0,ch15.pdf#1,ch12.pdf#4" {
		t.Errorf("context = %v", ids)
	}
	last := gen.Prompts()[2]
	if strings.Count(last, "Skilled therapy required.") != 1 {
		t.Error("duplicate chunk should appear once in the prompt")
	}
	if !strings.Contains(last, "No searches remain") {
		t.Error("final prompt should say no searches remain")
	}
}

func TestAnalyze_EchoedPrompt(t *testing.T) {
	gen := llm.NewScriptedGenerator("Review this note...\n### Analysis:\n[SEARCH] ignored\n### Analysis:\n```json\n{\"findings\":[{\"title\":\"a\"}]}\n```")
	a, err := newTestOrchestrator(&fakeSearcher{}, gen, 2).Analyze(context.Background(), testDoc)
	if err != nil {
		t.Fatal(err)
	}
	if !a.Answered() || len(a.Findings) != 1 {
		t.Errorf("expected answer after last marker, got %s with %v", a.State, a.Findings)
	}
}

func TestAnalyze_EmptyDocumentAndDegradedInit(t *testing.T) {
	o := newTestOrchestrator(&fakeSearcher{}, llm.NewScriptedGenerator(), 1)
	if _, err := o.Analyze(context.Background(), models.TherapyDocument{Text: "  \n"}); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}

	gen := llm.NewScriptedGenerator(`{"findings":[]}`)
	o = New(&fakeSearcher{}, gen, failingExtractor{}, clinical.NewKeywordClassifier(), config.GenerationConfig{MaxIterations: 1})
	doc := models.TherapyDocument{Text: "Progress Note\nProgress toward goals noted.", Discipline: "ot"}
	a, err := o.Analyze(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Entities) != 0 || !a.Answered() {
		t.Errorf("extraction failure should continue with no entities, got %+v", a)
	}
	if a.DocumentType != clinical.TypeProgressNote {
		t.Errorf("classified type = %q", a.DocumentType)
	}
	if !strings.Contains(gen.Prompts()[0], "OT progress note") {
		t.Errorf("prompt should name discipline and type:\n%s", gen.Prompts()[0])
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"search", "[SEARCH] plan of care certification", "search"},
		{"search wins over json", "{\"findings\": []}\n[SEARCH] more", "search"},
		{"empty search", "[SEARCH]   ", "malformed"},
		{"answer", `{"findings": [{"title": "t"}], "summary": "s"}`, "answer"},
		{"fenced answer", "```json\n{\"findings\": []}\n```", "answer"},
		{"no json", "The note looks fine.", "malformed"},
		{"invalid json", `{"findings": [}`, "malformed"},
		{"findings not array", `{"findings": "none"}`, "malformed"},
		{"finding not object", `{"findings": ["missing signature"]}`, "malformed"},
		{"missing findings", `{"issues": []}`, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			switch r := Decode(tt.content).(type) {
			case SearchRequest:
				got = "search"
			case Answer:
				got = "answer"
				if r.Findings == nil {
					t.Error("answer findings should not be nil")
				}
			case Malformed:
				got = "malformed"
				if r.Err == nil || r.Content != tt.content {
					t.Errorf("malformed should carry content and error: %+v", r)
				}
			}
			if got != tt.want {
				t.Errorf("Decode(%q) = %s, want %s", tt.content, got, tt.want)
			}
		})
	}
}

func TestSession_Add(t *testing.T) {
	s := NewSession()
	if n := s.Add([]models.GuidelineHit{{SourceID: "a#0"}, {SourceID: "a#1"}, {SourceID: "a#0"}}); n != 2 {
		t.Errorf("Add = %d, want 2", n)
	}
	if n := s.Add([]models.GuidelineHit{{SourceID: "a#1"}, {SourceID: "b#0"}}); n != 1 {
		t.Errorf("Add = %d, want 1", n)
	}
	if s.Len() != 3 || s.Hits()[2].SourceID != "b#0" {
		t.Errorf("hits = %+v", s.Hits())
	}
}
