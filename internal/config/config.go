// Package config provides configuration loading and structs for kansa.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Guidelines GuidelineConfig  `yaml:"guidelines"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Rules      RulesConfig      `yaml:"rules"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Storage    StorageConfig    `yaml:"storage"`
	Watch      WatchConfig      `yaml:"watch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// GuidelineConfig describes the regulatory guideline corpus and its on-disk cache.
type GuidelineConfig struct {
	Sources           []string `yaml:"sources"`
	CacheDir          string   `yaml:"cache_dir"`
	MinFragmentLength int      `yaml:"min_fragment_length"`
	TopK              int      `yaml:"top_k"`
	KeywordEnabled    bool     `yaml:"keyword_enabled"`
	KeywordWeight     float64  `yaml:"keyword_weight"`
	SemanticWeight    float64  `yaml:"semantic_weight"`
	VectorBackend     string   `yaml:"vector_backend"` // memory, faiss
}

// EmbeddingConfig selects and tunes the text embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // onnx, ollama, openai, mock
	ModelPath  string `yaml:"model_path"`
	Model      string `yaml:"model"`
	Host       string `yaml:"host"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// GenerationConfig selects the generative model and bounds the retrieval loop.
type GenerationConfig struct {
	Provider      string        `yaml:"provider"` // ollama, openai
	Model         string        `yaml:"model"`
	Host          string        `yaml:"host"`
	APIKey        string        `yaml:"api_key"`
	Temperature   float64       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	MaxIterations int           `yaml:"max_iterations"`
	Timeout       time.Duration `yaml:"timeout"`
}

// RulesConfig points at the compliance rule store.
type RulesConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	Strict     bool     `yaml:"strict"`
}

// AnalysisConfig holds analysis defaults.
type AnalysisConfig struct {
	Mode              string `yaml:"mode"` // rules, retrieval, hybrid
	DefaultDiscipline string `yaml:"default_discipline"`
}

// StorageConfig holds the analysis history database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds inbox watch settings.
type WatchConfig struct {
	Directories  []string `yaml:"directories"`
	Extensions   []string `yaml:"extensions"`
	Recursive    *bool    `yaml:"recursive"`
	Discipline   string   `yaml:"discipline"`
	DocumentType string   `yaml:"document_type"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to false when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return false
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	for i := range cfg.Guidelines.Sources {
		cfg.Guidelines.Sources[i] = expandPath(cfg.Guidelines.Sources[i], configDir)
	}
	cfg.Guidelines.CacheDir = expandPath(cfg.Guidelines.CacheDir, configDir)
	cfg.Rules.Directory = expandPath(cfg.Rules.Directory, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Metrics.Textfile != "" {
		cfg.Metrics.Textfile = expandPath(cfg.Metrics.Textfile, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values that no component can work with.
func (c *Config) Validate() error {
	switch c.Analysis.Mode {
	case "rules", "retrieval", "hybrid":
	default:
		return fmt.Errorf("invalid analysis mode %q: want rules, retrieval or hybrid", c.Analysis.Mode)
	}
	if c.Generation.MaxIterations < 1 {
		return fmt.Errorf("generation.max_iterations must be at least 1, got %d", c.Generation.MaxIterations)
	}
	if c.Guidelines.KeywordWeight < 0 || c.Guidelines.SemanticWeight < 0 {
		return fmt.Errorf("guideline fusion weights must not be negative")
	}
	switch c.Guidelines.VectorBackend {
	case "", "memory", "faiss":
	default:
		return fmt.Errorf("invalid guidelines.vector_backend %q: want memory or faiss", c.Guidelines.VectorBackend)
	}
	return nil
}

// NeedsRetrieval reports whether the configured mode uses the retrieval path.
func (c *Config) NeedsRetrieval() bool {
	return c.Analysis.Mode == "retrieval" || c.Analysis.Mode == "hybrid"
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
