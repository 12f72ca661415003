// Package llm adapts generative model providers to a single prompt-in, text-out interface.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when a provider answers with no content.
var ErrEmptyResponse = errors.New("empty model response")

// Generator produces a completion for a prompt. One call is one generation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
	Close() error
}
