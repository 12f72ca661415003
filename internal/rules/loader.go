package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/models"
)

// RuleSet is the result of loading a rule directory.
type RuleSet struct {
	// Rules in load order: files in lexical order, records in first-appearance order.
	Rules []*models.ComplianceRule

	// Problems holds every skipped file, triple or record.
	Problems []error

	// Files is the number of rule files read.
	Files int
}

// Loader reads compliance rules from a directory of rule files.
type Loader struct {
	logger     *zap.Logger
	extensions []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the logger for skipped files and records.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithExtensions sets the file extensions treated as rule files.
func WithExtensions(exts []string) LoaderOption {
	return func(l *Loader) {
		if len(exts) > 0 {
			l.extensions = exts
		}
	}
}

// NewLoader creates a rule loader. By default .yaml and .yml files are read.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger:     zap.NewNop(),
		extensions: []string{".yaml", ".yml"},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadRules loads every rule file in dir. A missing directory is fatal; malformed files,
// triples and records are logged, recorded in RuleSet.Problems and skipped.
func (l *Loader) LoadRules(dir string) (*RuleSet, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Path: dir, Message: "directory not found", Cause: ErrRuleDirectoryMissing}
		}
		return nil, &LoadError{Path: dir, Message: "cannot stat directory", Cause: err}
	}
	if !info.IsDir() {
		return nil, &LoadError{Path: dir, Message: "not a directory", Cause: ErrRuleDirectoryMissing}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Message: "cannot read directory", Cause: err}
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !l.isRuleFile(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	set := &RuleSet{Rules: []*models.ComplianceRule{}}
	seen := make(map[string]string)
	for _, path := range files {
		l.loadFile(path, set, seen)
	}

	l.logger.Info("Loaded compliance rules",
		zap.String("dir", dir),
		zap.Int("files", set.Files),
		zap.Int("rules", len(set.Rules)),
		zap.Int("problems", len(set.Problems)))
	return set, nil
}

func (l *Loader) isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range l.extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (l *Loader) loadFile(path string, set *RuleSet, seen map[string]string) {
	data, err := os.ReadFile(path)
	if err != nil {
		l.problem(set, &ParseError{Path: path, Message: "cannot read file", Cause: err})
		return
	}
	g, problems, err := parseRuleFile(path, data)
	if err != nil {
		l.problem(set, err)
		return
	}
	set.Files++
	for _, p := range problems {
		l.problem(set, p)
	}

	for _, subject := range g.subjects {
		if !g.hasType(subject, ClassComplianceRule) {
			continue
		}
		rule, err := buildRule(g, subject)
		if err != nil {
			l.problem(set, &ParseError{Path: path, Line: g.lines[subject], Subject: subject, Message: err.Error()})
			continue
		}
		if first, dup := seen[rule.URI]; dup {
			l.problem(set, &ParseError{Path: path, Line: g.lines[subject], Subject: subject,
				Message: fmt.Sprintf("duplicate rule, first defined in %s", first)})
			continue
		}
		seen[rule.URI] = path
		set.Rules = append(set.Rules, rule)
	}
}

func (l *Loader) problem(set *RuleSet, err error) {
	l.logger.Warn("Skipping malformed rule data", zap.Error(err))
	set.Problems = append(set.Problems, err)
}

// buildRule assembles one rule record from its triples.
func buildRule(g *graph, subject string) (*models.ComplianceRule, error) {
	rule := &models.ComplianceRule{
		URI:              subject,
		Severity:         literal(g, subject, PredSeverity),
		StrictSeverity:   literal(g, subject, PredStrictSeverity),
		IssueTitle:       literal(g, subject, PredIssueTitle),
		IssueDetail:      literal(g, subject, PredIssueDetail),
		IssueCategory:    literal(g, subject, PredIssueCategory),
		Discipline:       strings.ToLower(literal(g, subject, PredDiscipline)),
		DocumentType:     strings.ToLower(literal(g, subject, PredDocumentType)),
		Suggestion:       literal(g, subject, PredSuggestion),
		PositiveKeywords: keywords(g, subject, PredPositiveKeywords),
		NegativeKeywords: keywords(g, subject, PredNegativeKeywords),
	}
	if rule.IssueTitle == "" {
		return nil, errors.New("missing issue title")
	}
	if rule.Discipline == "" {
		return nil, errors.New("missing discipline")
	}
	if rule.DocumentType == "" {
		rule.DocumentType = models.AnyDocumentType
	}
	if rule.Severity == "" {
		rule.Severity = defaultSeverity
	}
	if raw := literal(g, subject, PredFinancialImpact); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("financial impact %q is not an integer", raw)
		}
		rule.FinancialImpact = n
	}
	rule.Predicate = models.NewKeywordPredicate(rule.PositiveKeywords, rule.NegativeKeywords)
	return rule, nil
}

// literal returns the first value of predicate on subject.
func literal(g *graph, subject, predicate string) string {
	objs := g.objects(subject, predicate)
	if len(objs) == 0 {
		return ""
	}
	return strings.TrimSpace(objs[0].value)
}

// keywords collects the hasKeyword literals of every keyword set linked from subject.
// A literal object is taken as a keyword itself.
func keywords(g *graph, subject, predicate string) []string {
	var out []string
	for _, set := range g.objects(subject, predicate) {
		if !set.iri {
			out = append(out, set.value)
			continue
		}
		for _, kw := range g.objects(set.value, PredKeyword) {
			out = append(out, kw.value)
		}
	}
	return out
}
