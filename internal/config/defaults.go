package config

import (
	"strings"
	"time"
)

const defaultDataDir = "/usr/local/var/kansa/data"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Guidelines.CacheDir == "" {
		cfg.Guidelines.CacheDir = defaultDataDir + "/cache"
	}
	if cfg.Guidelines.MinFragmentLength == 0 {
		cfg.Guidelines.MinFragmentLength = 50
	}
	if cfg.Guidelines.TopK == 0 {
		cfg.Guidelines.TopK = 5
	}
	if cfg.Guidelines.KeywordWeight == 0 && cfg.Guidelines.SemanticWeight == 0 {
		cfg.Guidelines.KeywordWeight = 0.3
		cfg.Guidelines.SemanticWeight = 0.7
	}
	if cfg.Guidelines.VectorBackend == "" {
		cfg.Guidelines.VectorBackend = "memory"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = defaultDataDir + "/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaultDimensions(cfg.Embedding.Provider, cfg.Embedding.Model)
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "ollama"
	}
	if cfg.Generation.Model == "" {
		switch cfg.Generation.Provider {
		case "openai":
			cfg.Generation.Model = "gpt-4o-mini"
		default:
			cfg.Generation.Model = "llama3.1"
		}
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.1
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 1024
	}
	if cfg.Generation.MaxIterations == 0 {
		cfg.Generation.MaxIterations = 3
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 2 * time.Minute
	}
	if cfg.Rules.Directory == "" {
		cfg.Rules.Directory = defaultDataDir + "/rules"
	}
	if cfg.Rules.Extensions == nil {
		cfg.Rules.Extensions = []string{".yaml", ".yml"}
	}
	if cfg.Analysis.Mode == "" {
		cfg.Analysis.Mode = "rules"
	}
	if cfg.Analysis.DefaultDiscipline == "" {
		cfg.Analysis.DefaultDiscipline = "pt"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultDataDir + "/db/analyses.db"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx"}
	}
	if cfg.Watch.Discipline == "" {
		cfg.Watch.Discipline = cfg.Analysis.DefaultDiscipline
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "kansa"
	}
}

// modelDimensions lists the output sizes of well-known embedding models.
var modelDimensions = map[string]int{
	"all-minilm":             384,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// defaultDimensions returns the vector size for model, falling back to the provider's default.
func defaultDimensions(provider, model string) int {
	name := strings.TrimSuffix(strings.ToLower(model), ":latest")
	if d, ok := modelDimensions[name]; ok {
		return d
	}
	switch provider {
	case "ollama":
		return 768
	case "openai":
		return 1536
	default:
		return 384
	}
}
