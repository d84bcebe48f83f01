package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible
// embedding endpoint.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// SQLiteConfig points the index at an on-disk database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PgvectorConfig contains connection details for a Postgres index with
// the pgvector extension.
type PgvectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// QdrantConfig contains connection details for a Qdrant index.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Type     string          `yaml:"type"`
	Metric   string          `yaml:"metric"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// OpenAIGeneratorConfig holds configuration for the chat completions
// endpoint that writes the final answers.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// GeneratorConfig configures answer generation.
type GeneratorConfig struct {
	OpenAI         *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	FallbackAnswer string                 `yaml:"fallback_answer"`
}

// RetrievalConfig tunes the similarity search.
type RetrievalConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"`
	Category string  `yaml:"category"`
}

// ContextConfig bounds the prompt sent to the generator.
type ContextConfig struct {
	TokenBudget  int `yaml:"token_budget"`
	HistoryTurns int `yaml:"history_turns"`
}

// SessionConfig controls conversation lifetimes.
type SessionConfig struct {
	IdleTimeoutSecs int    `yaml:"idle_timeout_secs"`
	ExpiredPolicy   string `yaml:"expired_policy"`
}

// IngestConfig tunes the ingestion run.
type IngestConfig struct {
	Workers int `yaml:"workers"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Context     ContextConfig     `yaml:"context"`
	Session     SessionConfig     `yaml:"session"`
	Ingest      IngestConfig      `yaml:"ingest"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/medrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/medrag/config.yaml
// and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as
// needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "medrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		Chunker:     ChunkerConfig{MaxChars: 300, OverlapChars: 50},
		VectorIndex: VectorIndexConfig{Type: "memory", Metric: "cosine"},
		Retrieval:   RetrievalConfig{TopK: 5, MinScore: 0.25},
		Context:     ContextConfig{TokenBudget: 2048, HistoryTurns: 4},
		Session:     SessionConfig{IdleTimeoutSecs: 1800, ExpiredPolicy: "rollover"},
		Ingest:      IngestConfig{Workers: 4},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 300
	}
	if cfg.Chunker.OverlapChars == 0 {
		cfg.Chunker.OverlapChars = 50
	}
	if cfg.VectorIndex.Type == "" {
		cfg.VectorIndex.Type = "memory"
	}
	if cfg.VectorIndex.Metric == "" {
		cfg.VectorIndex.Metric = "cosine"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Context.TokenBudget == 0 {
		cfg.Context.TokenBudget = 2048
	}
	if cfg.Session.IdleTimeoutSecs == 0 {
		cfg.Session.IdleTimeoutSecs = 1800
	}
	if cfg.Session.ExpiredPolicy == "" {
		cfg.Session.ExpiredPolicy = "rollover"
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.VectorIndex.Type == "qdrant" && cfg.VectorIndex.Qdrant != nil {
		if cfg.VectorIndex.Qdrant.URL == "" {
			cfg.VectorIndex.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorIndex.Qdrant.Collection == "" {
			cfg.VectorIndex.Qdrant.Collection = "medrag"
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
	}
	if cfg.Generator.OpenAI != nil {
		if cfg.Generator.OpenAI.BaseURL == "" {
			cfg.Generator.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 30
		}
	}
}
