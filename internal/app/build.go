// Package app assembles pipeline components from configuration. Both
// commands wire through here so config semantics stay in one place.
package app

import (
	"fmt"
	"time"

	"medrag/internal/assembler"
	"medrag/internal/chunker"
	"medrag/internal/config"
	"medrag/internal/domain"
	"medrag/internal/embedding/hashing"
	embopenai "medrag/internal/embedding/openai"
	"medrag/internal/generator"
	genopenai "medrag/internal/generator/openai"
	"medrag/internal/service"
	"medrag/internal/vectorstore"
	"medrag/internal/vectorstore/memory"
	"medrag/internal/vectorstore/pgvector"
	"medrag/internal/vectorstore/qdrant"
	"medrag/internal/vectorstore/sqlite"
)

// BuildEmbedder selects the embedder backend from config.
func BuildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := hashing.DefaultDimension
		if cfg.Embedder.Hashing != nil && cfg.Embedder.Hashing.Dimension > 0 {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.New(dim)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder section missing", domain.ErrConfig)
		}
		return embopenai.New(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			BatchSize: cfg.Embedder.OpenAI.BatchSize,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfig, cfg.Embedder.Type)
	}
}

// BuildIndex selects the vector index backend from config. The
// dimension comes from the embedder so the two always agree.
func BuildIndex(cfg *config.AppConfig, dimension int) (domain.VectorIndex, error) {
	metric, err := vectorstore.ParseMetric(cfg.VectorIndex.Metric)
	if err != nil {
		return nil, err
	}
	switch cfg.VectorIndex.Type {
	case "memory", "":
		return memory.New(dimension, metric)
	case "sqlite":
		if cfg.VectorIndex.SQLite == nil || cfg.VectorIndex.SQLite.Path == "" {
			return nil, fmt.Errorf("%w: sqlite index needs a path", domain.ErrConfig)
		}
		return sqlite.New(cfg.VectorIndex.SQLite.Path, dimension, metric)
	case "pgvector":
		if cfg.VectorIndex.Pgvector == nil || cfg.VectorIndex.Pgvector.DSN == "" {
			return nil, fmt.Errorf("%w: pgvector index needs a dsn", domain.ErrConfig)
		}
		return pgvector.New(cfg.VectorIndex.Pgvector.DSN, dimension, metric)
	case "qdrant":
		if cfg.VectorIndex.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant index section missing", domain.ErrConfig)
		}
		return qdrant.New(qdrant.Config{
			URL:        cfg.VectorIndex.Qdrant.URL,
			APIKey:     cfg.VectorIndex.Qdrant.APIKey,
			Collection: cfg.VectorIndex.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorIndex.Qdrant.TimeoutSecs) * time.Second,
		}, dimension, metric)
	default:
		return nil, fmt.Errorf("%w: unknown vector index %q", domain.ErrConfig, cfg.VectorIndex.Type)
	}
}

// BuildGenerator wires the chat completions client. The chat command
// needs it; ingestion does not.
func BuildGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	if cfg.Generator.OpenAI == nil {
		return nil, fmt.Errorf("%w: generator.openai section missing", domain.ErrConfig)
	}
	client, err := genopenai.New(genopenai.Config{
		BaseURL:     cfg.Generator.OpenAI.BaseURL,
		APIKeyEnv:   cfg.Generator.OpenAI.APIKeyEnv,
		Model:       cfg.Generator.OpenAI.Model,
		Temperature: cfg.Generator.OpenAI.Temperature,
		Timeout:     time.Duration(cfg.Generator.OpenAI.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return generator.New(client, cfg.Generator.FallbackAnswer), nil
}

// BuildPipeline assembles the full pipeline. gen may be nil for
// ingest-only use.
func BuildPipeline(cfg *config.AppConfig, gen domain.Generator) (*service.Pipeline, domain.VectorIndex, error) {
	emb, err := BuildEmbedder(cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := BuildIndex(cfg, emb.Dimension())
	if err != nil {
		return nil, nil, err
	}
	ck, err := chunker.New(cfg.Chunker.MaxChars, cfg.Chunker.OverlapChars)
	if err != nil {
		idx.Close()
		return nil, nil, err
	}
	asm := assembler.New(cfg.Context.TokenBudget, cfg.Context.HistoryTurns)
	p := service.New(ck, emb, idx, asm, gen, service.Options{
		TopK:           cfg.Retrieval.TopK,
		MinScore:       cfg.Retrieval.MinScore,
		IngestWorkers:  cfg.Ingest.Workers,
		CategoryFilter: cfg.Retrieval.Category,
	})
	return p, idx, nil
}
