// Package qdrant provides a vector index backed by a Qdrant server
// through its REST API. The collection is created on first use with the
// configured dimension and metric.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
)

// Config contains connection details for a Qdrant vector index.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is a minimal REST client to Qdrant.
type Index struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	metric     vectorstore.Metric
	client     *http.Client
}

// New creates the client and ensures the collection exists with the
// configured dimension and metric.
func New(cfg Config, dimension int, metric vectorstore.Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", domain.ErrConfig, dimension)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("%w: qdrant collection name missing", domain.ErrConfig)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	s := &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  dimension,
		metric:     metric,
		client:     &http.Client{Timeout: timeout},
	}
	distance := "Cosine"
	if metric == vectorstore.Dot {
		distance = "Dot"
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": distance,
		},
	}
	// Qdrant returns 200 when the collection already exists with the
	// same schema; a schema conflict propagates as an error.
	if err := s.putJSON(context.Background(), fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert stores or replaces points by chunk ID.
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
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     pointID(ch.ID),
			"vector": vectors[i],
			"payload": map[string]any{
				"chunk_id":    ch.ID,
				"document_id": ch.DocumentID,
				"ordinal":     ch.Ordinal,
				"title":       ch.Title,
				"category":    ch.Category,
				"text":        ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

// Query returns up to k nearest chunks, optionally filtered by category.
func (s *Index) Query(ctx context.Context, vector []float64, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if filter.Category != "" {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "category", "match": map[string]any{"value": filter.Category}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.ScoredChunk, 0, len(resp.Result))
	for _, r := range resp.Result {
		ch := domain.Chunk{}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			ch.ID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			ch.DocumentID = v
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			ch.Ordinal = int(v)
		}
		if v, ok := r.Payload["title"].(string); ok {
			ch.Title = v
		}
		if v, ok := r.Payload["category"].(string); ok {
			ch.Category = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			ch.Text = v
		}
		results = append(results, domain.ScoredChunk{Chunk: ch, Score: r.Score})
	}
	// Qdrant orders by score; re-rank to apply the chunk-ID tie-break.
	return vectorstore.Rank(results, k), nil
}

// Count returns the number of stored points.
func (s *Index) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// Close is a no-op; the HTTP client holds no persistent connection state
// worth tearing down.
func (s *Index) Close() error { return nil }

// pointID derives a stable UUID from the chunk ID, since Qdrant accepts
// only integers or UUIDs as point identifiers. The original chunk ID
// travels in the payload.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *Index) putJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPut, url, body, out)
}

func (s *Index) postJSON(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out)
}

func (s *Index) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
