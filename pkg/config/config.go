// Package config loads the recognized options from YAML, with defaults that
// match the production deployment this pipeline was built for.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChunkingConfig bounds segmentation.
type ChunkingConfig struct {
	MaxTokens       int     `yaml:"max_tokens"`
	MinTokens       int     `yaml:"min_tokens"`
	OverlapFraction float64 `yaml:"overlap_fraction"`
}

// RetrievalConfig tunes hybrid search and re-ranking.
type RetrievalConfig struct {
	TopK           int     `yaml:"top_k"`
	TopNMultiplier int     `yaml:"top_n_multiplier"`
	VectorWeight   float64 `yaml:"vector_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	Epsilon        float64 `yaml:"epsilon"`
}

// EmbeddingConfig selects the embedding collaborator.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai, ollama, fastembed, dummy
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// GenerationConfig selects the generation collaborator.
type GenerationConfig struct {
	Provider      string `yaml:"provider"` // openai, anthropic, gemini, ollama, dummy
	Model         string `yaml:"model"`
	MarkerPattern string `yaml:"citation_marker_pattern"`
}

// StoreConfig selects the search store backend.
type StoreConfig struct {
	Type       string `yaml:"type"` // memory, postgres
	ConnString string `yaml:"conn_string"`
	SchemaPath string `yaml:"schema_path"`
}

// ArchiveConfig selects where persisted turn history lives.
type ArchiveConfig struct {
	Type       string `yaml:"type"` // memory, mongo
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// SessionConfig bounds conversation state.
type SessionConfig struct {
	WindowSize int `yaml:"conversation_window_size"`
}

// RetryConfig bounds calls to external collaborators.
type RetryConfig struct {
	AttemptCount int `yaml:"retry_attempt_count"`
	BaseDelayMS  int `yaml:"base_delay_ms"`
	MaxDelayMS   int `yaml:"max_delay_ms"`
}

// Config is the root configuration.
type Config struct {
	LogMode    string           `yaml:"log_mode"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Store      StoreConfig      `yaml:"store"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Session    SessionConfig    `yaml:"session"`
	Retry      RetryConfig      `yaml:"retry"`
}

// Load reads a config from path. A missing file returns the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default matches the original deployment: text-embedding-3-large vectors
// (3072 dims), top 5 results, an 8-turn window.
func Default() *Config {
	return &Config{
		LogMode: "dev",
		Chunking: ChunkingConfig{
			MaxTokens:       400,
			MinTokens:       16,
			OverlapFraction: 0.15,
		},
		Retrieval: RetrievalConfig{
			TopK:           5,
			TopNMultiplier: 3,
			VectorWeight:   0.7,
			LexicalWeight:  0.3,
			ScoreThreshold: 0.25,
			Epsilon:        0.05,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-large",
			Dimension: 3072,
		},
		Generation: GenerationConfig{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Store:   StoreConfig{Type: "memory", SchemaPath: "schema/postgres.sql"},
		Archive: ArchiveConfig{Type: "memory"},
		Session: SessionConfig{WindowSize: 8},
		Retry: RetryConfig{
			AttemptCount: 3,
			BaseDelayMS:  500,
			MaxDelayMS:   10000,
		},
	}
}

// Validate rejects option combinations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return errors.New("chunking.max_tokens must be positive")
	}
	if c.Chunking.MinTokens > c.Chunking.MaxTokens {
		return fmt.Errorf("chunking.min_tokens %d exceeds max_tokens %d", c.Chunking.MinTokens, c.Chunking.MaxTokens)
	}
	if c.Chunking.OverlapFraction < 0 || c.Chunking.OverlapFraction >= 1 {
		return errors.New("chunking.overlap_fraction must be in [0, 1)")
	}
	if c.Retrieval.TopK <= 0 {
		return errors.New("retrieval.top_k must be positive")
	}
	if c.Embedding.Dimension <= 0 {
		return errors.New("embedding.dimension must be positive")
	}
	if c.Session.WindowSize <= 0 {
		return errors.New("session.conversation_window_size must be positive")
	}
	if c.Retry.AttemptCount <= 0 {
		return errors.New("retry.retry_attempt_count must be positive")
	}
	return nil
}
