package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 300, cfg.Chunker.MaxChars)
	assert.Equal(t, 50, cfg.Chunker.OverlapChars)
	assert.Equal(t, "memory", cfg.VectorIndex.Type)
	assert.Equal(t, "rollover", cfg.Session.ExpiredPolicy)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
embedder:
  type: openai
  openai:
    model: text-embedding-3-large
vector_index:
  type: sqlite
  sqlite:
    path: /tmp/index.db
retrieval:
  min_score: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 32, cfg.Embedder.OpenAI.BatchSize)
	assert.Equal(t, "sqlite", cfg.VectorIndex.Type)
	assert.Equal(t, "cosine", cfg.VectorIndex.Metric)
	assert.Equal(t, 0.8, cfg.Retrieval.MinScore)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 2048, cfg.Context.TokenBudget)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "config.yaml")
	cfg := defaultConfig()
	cfg.Retrieval.TopK = 9
	cfg.Session.ExpiredPolicy = "error"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopK)
	assert.Equal(t, "error", loaded.Session.ExpiredPolicy)
}
