package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Retrieval.TopK, cfg.Retrieval.TopK)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 3072, cfg.Embedding.Dimension)
	assert.Equal(t, 8, cfg.Session.WindowSize)
	assert.Equal(t, 400, cfg.Chunking.MaxTokens)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
log_mode: prod
chunking:
  max_tokens: 200
  overlap_fraction: 0.1
retrieval:
  top_k: 3
session:
  conversation_window_size: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, 200, cfg.Chunking.MaxTokens)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 4, cfg.Session.WindowSize)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3072, cfg.Embedding.Dimension)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
chunking:
  max_tokens: 10
  min_tokens: 50
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_tokens", func(c *Config) { c.Chunking.MaxTokens = 0 }},
		{"min above max", func(c *Config) { c.Chunking.MinTokens = c.Chunking.MaxTokens + 1 }},
		{"overlap out of range", func(c *Config) { c.Chunking.OverlapFraction = 1 }},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapFraction = -0.1 }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }},
		{"zero window", func(c *Config) { c.Session.WindowSize = 0 }},
		{"zero attempts", func(c *Config) { c.Retry.AttemptCount = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
