package retrieval

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SearchDirective prefixes a model request for more guideline context.
const SearchDirective = "[SEARCH]"

// Response is the decoded form of one model output: Answer, SearchRequest or Malformed.
type Response interface {
	response()
}

// Answer is a final JSON answer carrying a findings array.
type Answer struct {
	Result   map[string]any
	Findings []map[string]any
}

// SearchRequest asks for another guideline search.
type SearchRequest struct {
	Query string
}

// Malformed is output that is neither a directive nor a valid answer.
type Malformed struct {
	Content string
	Err     error
}

func (Answer) response()        {}
func (SearchRequest) response() {}
func (Malformed) response()     {}

var (
	errNoJSON           = errors.New("no JSON object found")
	errNoFindings       = errors.New(`answer has no "findings" array`)
	errEmptySearch      = errors.New("search directive without query")
	errFindingNotObject = errors.New("finding is not an object")
)

// Decode classifies model output. A line starting with the search directive wins over
// any JSON in the same output.
func Decode(content string) Response {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, SearchDirective) {
			continue
		}
		query := strings.TrimSpace(strings.TrimPrefix(line, SearchDirective))
		if query == "" {
			return Malformed{Content: content, Err: errEmptySearch}
		}
		return SearchRequest{Query: query}
	}

	raw, ok := jsonObject(content)
	if !ok {
		return Malformed{Content: content, Err: errNoJSON}
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Malformed{Content: content, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	items, ok := result["findings"].([]any)
	if !ok {
		return Malformed{Content: content, Err: errNoFindings}
	}
	findings := make([]map[string]any, 0, len(items))
	for _, item := range items {
		f, ok := item.(map[string]any)
		if !ok {
			return Malformed{Content: content, Err: errFindingNotObject}
		}
		findings = append(findings, f)
	}
	return Answer{Result: result, Findings: findings}
}

// jsonObject returns the span from the first '{' to the last '}', which also strips
// markdown code fences around the answer.
func jsonObject(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return "", false
	}
	return content[start : end+1], true
}
