package embedding

import (
	"fmt"
	"os"

	"github.com/hyperjump/kansa/internal/config"
)

// New builds the embedder selected by cfg.Provider, wrapped in an LRU cache.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		inner = e
	case "ollama":
		e, err := NewOllamaEmbedder(cfg.Host, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai embedder needs embedding.api_key or OPENAI_API_KEY")
		}
		inner = NewOpenAIEmbedder(key, cfg.Host, cfg.Model, cfg.Dimensions)
	case "mock":
		inner = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
