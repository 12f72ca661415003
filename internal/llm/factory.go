package llm

import (
	"fmt"
	"os"

	"github.com/hyperjump/kansa/internal/config"
)

// New builds the generator selected by cfg.Provider.
func New(cfg config.GenerationConfig) (Generator, error) {
	switch cfg.Provider {
	case "ollama":
		g, err := NewOllamaGenerator(cfg.Host, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "openai":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openai generator needs generation.api_key or OPENAI_API_KEY")
		}
		return NewOpenAIGenerator(key, cfg.Host, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}
