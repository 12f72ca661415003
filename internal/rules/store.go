package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ruleFile is the top-level shape of a rule store document.
type ruleFile struct {
	Prefixes map[string]string `yaml:"prefixes"`
	Triples  []yaml.Node       `yaml:"triples"`
}

// term is a triple component: an IRI (or blank node label) or a literal.
type term struct {
	value string
	iri   bool
}

// graph indexes triples by subject, keeping subject and object order.
type graph struct {
	subjects []string
	props    map[string]map[string][]term
	lines    map[string]int
}

func newGraph() *graph {
	return &graph{props: map[string]map[string][]term{}, lines: map[string]int{}}
}

func (g *graph) add(subject, predicate string, object term, line int) {
	byPred, ok := g.props[subject]
	if !ok {
		byPred = map[string][]term{}
		g.props[subject] = byPred
		g.subjects = append(g.subjects, subject)
		g.lines[subject] = line
	}
	byPred[predicate] = append(byPred[predicate], object)
}

func (g *graph) objects(subject, predicate string) []term {
	return g.props[subject][predicate]
}

func (g *graph) hasType(subject, class string) bool {
	for _, o := range g.objects(subject, rdfType) {
		if o.iri && o.value == class {
			return true
		}
	}
	return false
}

// parseRuleFile decodes one rule file into a graph. Malformed triples are reported in
// problems and skipped; a malformed document returns an error.
func parseRuleFile(path string, data []byte) (*graph, []error, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, &ParseError{Path: path, Message: "invalid YAML", Cause: err}
	}
	prefixes := map[string]string{}
	for k, v := range builtinPrefixes {
		prefixes[k] = v
	}
	for k, v := range doc.Prefixes {
		prefixes[k] = v
	}

	g := newGraph()
	var problems []error
	for i := range doc.Triples {
		node := &doc.Triples[i]
		s, p, o, err := tripleParts(node)
		if err != nil {
			problems = append(problems, &ParseError{Path: path, Line: node.Line, Message: err.Error()})
			continue
		}
		subject := resolve(s, prefixes, false)
		predicate := resolve(p, prefixes, true)
		if !subject.iri || !predicate.iri {
			problems = append(problems, &ParseError{Path: path, Line: node.Line,
				Message: fmt.Sprintf("subject and predicate must be IRIs, got %q %q", s, p)})
			continue
		}
		g.add(subject.value, predicate.value, resolve(o, prefixes, false), node.Line)
	}
	return g, problems, nil
}

func tripleParts(node *yaml.Node) (string, string, string, error) {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 3 {
		return "", "", "", fmt.Errorf("triple must be a sequence of 3 items")
	}
	var parts [3]string
	for i, c := range node.Content {
		if c.Kind != yaml.ScalarNode {
			return "", "", "", fmt.Errorf("triple item %d must be a scalar", i+1)
		}
		parts[i] = strings.TrimSpace(c.Value)
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("triple has empty subject or predicate")
	}
	return parts[0], parts[1], parts[2], nil
}

// resolve turns a raw triple component into a term. "<iri>", "_:label" and names with a
// declared prefix are IRIs; everything else is a literal.
func resolve(raw string, prefixes map[string]string, predicate bool) term {
	if predicate && raw == "a" {
		return term{value: rdfType, iri: true}
	}
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") && len(raw) > 2 {
		return term{value: raw[1 : len(raw)-1], iri: true}
	}
	if strings.HasPrefix(raw, "_:") {
		return term{value: raw, iri: true}
	}
	if prefix, local, ok := strings.Cut(raw, ":"); ok && !strings.ContainsAny(raw, " \t") {
		if ns, declared := prefixes[prefix]; declared {
			return term{value: ns + local, iri: true}
		}
	}
	return term{value: raw}
}
