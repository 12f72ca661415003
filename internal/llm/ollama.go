package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaGenerator generates text with a local Ollama server.
type OllamaGenerator struct {
	client      *api.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOllamaGenerator creates a generator for model. An empty host uses OLLAMA_HOST
// or the Ollama default.
func NewOllamaGenerator(host, model string, temperature float64, maxTokens int) (*OllamaGenerator, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	return &OllamaGenerator{
		client:      api.NewClient(hostURL, http.DefaultClient),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Generate streams the completion for prompt into a single string.
func (o *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Options: map[string]interface{}{
			"temperature": o.temperature,
			"num_predict": o.maxTokens,
		},
	}

	var responseBuilder strings.Builder
	err := o.client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate response: %w", err)
	}
	if strings.TrimSpace(responseBuilder.String()) == "" {
		return "", ErrEmptyResponse
	}
	return responseBuilder.String(), nil
}

// Model returns the model name.
func (o *OllamaGenerator) Model() string {
	return o.model
}

// Close is a no-op.
func (o *OllamaGenerator) Close() error {
	return nil
}
