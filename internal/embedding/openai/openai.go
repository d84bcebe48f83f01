// Package openai adapts an OpenAI-compatible embeddings endpoint to the
// pipeline's Embedder interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"medrag/internal/backoff"
	"medrag/internal/domain"
)

// Dimensions of the known OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config configures the embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	BatchSize int
	Timeout   time.Duration
	Retry     backoff.Policy
}

// Embedder calls the embeddings API in bounded batches with retry on
// transient failures. A batch either yields a vector for every input or
// fails as a whole.
type Embedder struct {
	client    *oai.Client
	model     string
	batchSize int
	timeout   time.Duration
	retry     backoff.Policy
	dimension int
}

// New creates an embeddings client from the configuration, reading the
// API key from the configured environment variable.
func New(cfg Config) (*Embedder, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Base == 0 {
		cfg.Retry = backoff.Default()
	}
	clientCfg := oai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	dimension, ok := modelDimensions[cfg.Model]
	if !ok {
		dimension = 1536
	}
	return &Embedder{
		client:    oai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		retry:     cfg.Retry,
		dimension: dimension,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed converts texts to vectors, order-preserving, batching up to the
// configured batch size per API call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float64, error) {
	var vectors [][]float64
	err := backoff.Retry(ctx, e.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.client.CreateEmbeddings(callCtx, oai.EmbeddingRequest{
			Model: oai.EmbeddingModel(e.model),
			Input: batch,
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) != len(batch) {
			return backoff.Transient(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(batch)))
		}
		vectors = make([][]float64, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return fmt.Errorf("embedding index %d out of range", d.Index)
			}
			v := make([]float64, len(d.Embedding))
			for i, x := range d.Embedding {
				v[i] = float64(x)
			}
			vectors[d.Index] = v
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embeddings call: %v", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingService, err)
	}
	return vectors, nil
}

// classify splits API failures into retryable and permanent. Rate limits,
// server errors and timeouts are retried; other client errors (such as
// malformed input) are not.
func classify(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return backoff.Transient(err)
		}
		return err
	}
	// Network-level failures and deadline hits are worth another attempt.
	return backoff.Transient(err)
}
