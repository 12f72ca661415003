package guideline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize trims text and collapses runs of whitespace to a single space.
func Normalize(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}

// Fragments normalizes paragraphs and keeps those at least minLength characters long.
func Fragments(paragraphs []string, minLength int) []string {
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = Normalize(p)
		if p == "" || utf8.RuneCountInString(p) < minLength {
			continue
		}
		out = append(out, p)
	}
	return out
}
