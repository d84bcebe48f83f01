// Package memory provides an in-memory vector index using brute-force
// similarity search. It backs tests and single-process deployments where
// persistence is not needed.
package memory

import (
	"context"
	"fmt"
	"sync"

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
)

type entry struct {
	chunk  domain.Chunk
	vector []float64
}

// Index keeps chunk vectors in a mutex-guarded map keyed by chunk ID.
// Upserts to the same ID are linearized by the lock; reads run
// concurrently.
type Index struct {
	mu        sync.RWMutex
	dimension int
	metric    vectorstore.Metric
	entries   map[string]entry
}

// New creates an empty index with a fixed dimension and metric.
func New(dimension int, metric vectorstore.Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", domain.ErrConfig, dimension)
	}
	return &Index{
		dimension: dimension,
		metric:    metric,
		entries:   make(map[string]entry),
	}, nil
}

// Upsert stores or replaces vectors by chunk ID. The whole call is
// rejected when any vector has the wrong dimension.
func (s *Index) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, index wants %d",
				domain.ErrDimensionMismatch, chunks[i].ID, len(v), s.dimension)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range chunks {
		s.entries[chunks[i].ID] = entry{chunk: chunks[i], vector: vectors[i]}
	}
	return nil
}

// Query returns up to k nearest chunks by the index metric, descending
// score with chunk-ID tie-break. An empty index yields an empty result.
func (s *Index) Query(ctx context.Context, vector []float64, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.ScoredChunk, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(e.chunk) {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: e.chunk,
			Score: vectorstore.Similarity(s.metric, vector, e.vector),
		})
	}
	return vectorstore.Rank(results, k), nil
}

// Count returns the number of stored chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op for the in-memory index.
func (s *Index) Close() error { return nil }
