package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned when a ScriptedGenerator has no outputs left.
var ErrScriptExhausted = errors.New("scripted generator has no more outputs")

// ScriptedGenerator returns predefined outputs in order and records the prompts it was
// given. A step with a non-nil Err fails that generation.
type ScriptedGenerator struct {
	mu      sync.Mutex
	steps   []ScriptStep
	prompts []string
}

// ScriptStep is one scripted generation.
type ScriptStep struct {
	Output string
	Err    error
}

// NewScriptedGenerator creates a generator that returns outputs in order.
func NewScriptedGenerator(outputs ...string) *ScriptedGenerator {
	steps := make([]ScriptStep, len(outputs))
	for i, o := range outputs {
		steps[i] = ScriptStep{Output: o}
	}
	return &ScriptedGenerator{steps: steps}
}

// NewScriptedGeneratorSteps creates a generator from explicit steps.
func NewScriptedGeneratorSteps(steps ...ScriptStep) *ScriptedGenerator {
	return &ScriptedGenerator{steps: steps}
}

// Generate returns the next scripted output.
func (g *ScriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.steps) == 0 {
		return "", ErrScriptExhausted
	}
	step := g.steps[0]
	g.steps = g.steps[1:]
	return step.Output, step.Err
}

// Prompts returns the prompts received so far.
func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

// Calls returns the number of Generate calls.
func (g *ScriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// Model returns "scripted".
func (g *ScriptedGenerator) Model() string {
	return "scripted"
}

// Close is a no-op.
func (g *ScriptedGenerator) Close() error {
	return nil
}
