package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"github.com/hyperjump/kansa/internal/vector"
)

// OllamaEmbedder generates embeddings through a local Ollama server.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
	maxRetries int
	timeout    time.Duration
}

// NewOllamaEmbedder creates an embedder for model. An empty host uses OLLAMA_HOST
// or the Ollama default.
func NewOllamaEmbedder(host, model string, dimensions int) (*OllamaEmbedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	return &OllamaEmbedder{
		client:     api.NewClient(hostURL, http.DefaultClient),
		model:      model,
		dimensions: dimensions,
		maxRetries: 2,
		timeout:    30 * time.Second,
	}, nil
}

// Embed returns the unit-length embedding for text, retrying transient failures.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		emb, err := e.embedOnce(ctx, text)
		if err == nil {
			return emb, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.maxRetries, lastErr)
}

func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:   e.model,
		Prompt:  text,
		Options: map[string]any{},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if e.dimensions > 0 && len(resp.Embedding) != e.dimensions {
		return nil, fmt.Errorf("model %s returned %d dimensions, configured %d", e.model, len(resp.Embedding), e.dimensions)
	}
	emb := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		emb[i] = float32(v)
	}
	vector.Normalize(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources of its own.
func (e *OllamaEmbedder) Close() error {
	return nil
}
