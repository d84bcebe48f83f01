package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
	"medrag/internal/vectorstore/memory"
)

// fixedEmbedder returns a canned vector per text, keyed by the text itself.
type fixedEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fixedEmbedder) Name() string   { return "fixed" }
func (f *fixedEmbedder) Dimension() int { return 3 }

func (f *fixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func seedIndex(t *testing.T) domain.VectorIndex {
	t.Helper()
	idx, err := memory.New(3, vectorstore.Cosine)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(),
		[]domain.Chunk{
			{ID: "d1:0", DocumentID: "d1", Text: "close match"},
			{ID: "d2:0", DocumentID: "d2", Text: "weak match"},
		},
		[][]float64{{1, 0, 0}, {0.6, 0.8, 0}},
	))
	return idx
}

func TestRetrieve_FiltersByMinScore(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float64{"what is hypertension": {1, 0, 0}}}
	r := New(emb, seedIndex(t))

	results, err := r.Retrieve(context.Background(), "what is hypertension", 5, 0.9, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1:0", results[0].Chunk.ID)
}

// A corpus whose best match scores below the threshold yields an empty
// result, not an error; downstream this becomes the fallback answer.
func TestRetrieve_NothingAboveThreshold(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float64{"unrelated": {0, 0, 1}}}
	r := New(emb, seedIndex(t))

	results, err := r.Retrieve(context.Background(), "unrelated", 5, 0.8, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_EmptyIndex(t *testing.T) {
	idx, err := memory.New(3, vectorstore.Cosine)
	require.NoError(t, err)
	emb := &fixedEmbedder{vectors: map[string][]float64{"q": {1, 0, 0}}}
	r := New(emb, idx)

	results, err := r.Retrieve(context.Background(), "q", 5, 0.0, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_EmbedderErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	r := New(&fixedEmbedder{err: wantErr}, seedIndex(t))

	_, err := r.Retrieve(context.Background(), "q", 5, 0.0, domain.Filter{})
	assert.ErrorIs(t, err, wantErr)
}
