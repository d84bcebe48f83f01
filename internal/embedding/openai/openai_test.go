package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/backoff"
	"medrag/internal/domain"
)

func fastRetry() backoff.Policy {
	return backoff.Policy{MaxRetries: 3, Base: time.Millisecond, Cap: 5 * time.Millisecond}
}

func newEmbedder(t *testing.T, baseURL string) *Embedder {
	t.Helper()
	t.Setenv("TEST_OPENAI_KEY", "test-key")
	e, err := New(Config{
		BaseURL:   baseURL,
		APIKeyEnv: "TEST_OPENAI_KEY",
		Model:     "text-embedding-3-small",
		BatchSize: 2,
		Timeout:   time.Second,
		Retry:     fastRetry(),
	})
	require.NoError(t, err)
	return e
}

func embeddingHandler(fail *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() > 0 {
			fail.Add(-1)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "overloaded"}})
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"embedding": []float64{float64(i), 1, 0}, "index": i}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}
}

func TestEmbed_OrderPreservingAcrossBatches(t *testing.T) {
	var fail atomic.Int32
	srv := httptest.NewServer(embeddingHandler(&fail))
	defer srv.Close()

	e := newEmbedder(t, srv.URL+"/v1")
	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	// Batch size 2: indices restart per batch, so "c" is index 0 again.
	assert.Equal(t, []float64{0, 1, 0}, vectors[0])
	assert.Equal(t, []float64{1, 1, 0}, vectors[1])
	assert.Equal(t, []float64{0, 1, 0}, vectors[2])
}

// The service fails twice and succeeds on the third attempt; with a
// retry limit of three the caller never sees an error.
func TestEmbed_RecoversWithinRetryLimit(t *testing.T) {
	var fail atomic.Int32
	fail.Store(2)
	srv := httptest.NewServer(embeddingHandler(&fail))
	defer srv.Close()

	e := newEmbedder(t, srv.URL+"/v1")
	vectors, err := e.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
}

func TestEmbed_ExhaustedRetriesSurfaceServiceError(t *testing.T) {
	var fail atomic.Int32
	fail.Store(100)
	srv := httptest.NewServer(embeddingHandler(&fail))
	defer srv.Close()

	e := newEmbedder(t, srv.URL+"/v1")
	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "malformed input"}})
	}))
	defer srv.Close()

	e := newEmbedder(t, srv.URL+"/v1")
	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_MissingKeyIsConfigError(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "")
	_, err := New(Config{APIKeyEnv: "TEST_OPENAI_KEY"})
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestDimensionByModel(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "k")
	small, err := New(Config{APIKeyEnv: "TEST_OPENAI_KEY", Model: "text-embedding-3-small"})
	require.NoError(t, err)
	assert.Equal(t, 1536, small.Dimension())

	large, err := New(Config{APIKeyEnv: "TEST_OPENAI_KEY", Model: "text-embedding-3-large"})
	require.NoError(t, err)
	assert.Equal(t, 3072, large.Dimension())
}
