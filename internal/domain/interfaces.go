package domain

import "context"

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts text into fixed-dimension vector representations.
// Embed is order-preserving and all-or-nothing: either every input text
// gets a vector or an error is returned with no partial results.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex stores chunk vectors plus metadata and answers
// nearest-neighbor queries. Upsert is idempotent per chunk ID and safe
// for concurrent callers; Query on an empty index returns an empty
// result, not an error.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Query(ctx context.Context, vector []float64, k int, filter Filter) ([]ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Generator produces a grounded answer for a query given an assembled
// context. An empty context must yield the fixed fallback answer without
// any external call.
type Generator interface {
	Generate(ctx context.Context, query string, block Context, history []Turn) (Answer, error)
}
