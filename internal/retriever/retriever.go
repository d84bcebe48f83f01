// Package retriever turns a natural-language query into a ranked set of
// relevant chunks by embedding the query and searching the vector index.
package retriever

import (
	"context"
	"fmt"

	"medrag/internal/domain"
)

// Retriever fetches the top-k most relevant chunks for a query.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
}

// New wires the retriever to its embedder and index.
func New(embedder domain.Embedder, index domain.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve embeds the query, fetches the top-k neighbors and drops
// results scoring below minScore. An empty result is the signal that the
// corpus holds nothing relevant; it is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, minScore float64, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	results, err := r.index.Query(ctx, vectors[0], k, filter)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	filtered := results[:0]
	for _, res := range results {
		if res.Score >= minScore {
			filtered = append(filtered, res)
		}
	}
	return filtered, nil
}
