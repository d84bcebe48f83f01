package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(3, vectorstore.Cosine)
	require.NoError(t, err)
	return idx
}

func chunk(doc string, ordinal int, category string) domain.Chunk {
	return domain.Chunk{
		ID:         domain.ChunkID(doc, ordinal),
		DocumentID: doc,
		Ordinal:    ordinal,
		Category:   category,
		Text:       fmt.Sprintf("%s chunk %d", doc, ordinal),
	}
}

func TestQuery_EmptyIndexReturnsEmptyResult(t *testing.T) {
	idx := newIndex(t)
	results, err := idx.Query(context.Background(), []float64{1, 0, 0}, 5, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsert_RejectsDimensionMismatch(t *testing.T) {
	idx := newIndex(t)
	err := idx.Upsert(context.Background(), []domain.Chunk{chunk("d1", 0, "")}, [][]float64{{1, 0}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, err = idx.Query(context.Background(), []float64{1, 0}, 5, domain.Filter{})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestQuery_ExactVectorIsTopResult(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]domain.Chunk{chunk("d1", 0, ""), chunk("d1", 1, ""), chunk("d2", 0, "")},
		[][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
	))

	results, err := idx.Query(ctx, []float64{0, 1, 0}, 3, domain.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "d1:1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestQuery_OrderingAndTieBreak(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	// d1:0 and d2:0 score identically; the tie breaks on chunk ID.
	require.NoError(t, idx.Upsert(ctx,
		[]domain.Chunk{chunk("d2", 0, ""), chunk("d1", 0, ""), chunk("d3", 0, "")},
		[][]float64{{1, 0, 0}, {1, 0, 0}, {0, 1, 0}},
	))

	results, err := idx.Query(ctx, []float64{1, 0, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "d1:0", results[0].Chunk.ID)
	assert.Equal(t, "d2:0", results[1].Chunk.ID)
	assert.Equal(t, "d3:0", results[2].Chunk.ID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestQuery_RespectsK(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx,
			[]domain.Chunk{chunk("d1", i, "")},
			[][]float64{{1, float64(i) / 10, 0}},
		))
	}
	results, err := idx.Query(ctx, []float64{1, 0, 0}, 4, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestQuery_CategoryFilter(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]domain.Chunk{chunk("d1", 0, "cardiology"), chunk("d2", 0, "oncology")},
		[][]float64{{1, 0, 0}, {1, 0, 0}},
	))

	results, err := idx.Query(ctx, []float64{1, 0, 0}, 10, domain.Filter{Category: "oncology"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2:0", results[0].Chunk.ID)
}

func TestUpsert_Idempotent(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	ch := chunk("d1", 0, "")
	vec := [][]float64{{1, 0, 0}}
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{ch}, vec))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{ch}, vec))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsert_ReplacesVectorForSameID(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	ch := chunk("d1", 0, "")
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{ch}, [][]float64{{1, 0, 0}}))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{ch}, [][]float64{{0, 1, 0}}))

	results, err := idx.Query(ctx, []float64{0, 1, 0}, 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestUpsert_ConcurrentDistinctIDs(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := idx.Upsert(ctx,
				[]domain.Chunk{chunk("d1", i, "")},
				[][]float64{{1, 0, float64(i)}},
			)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestDotMetric(t *testing.T) {
	idx, err := New(2, vectorstore.Dot)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx,
		[]domain.Chunk{chunk("d1", 0, ""), chunk("d2", 0, "")},
		[][]float64{{2, 0}, {1, 0}},
	))
	results, err := idx.Query(ctx, []float64{1, 0}, 2, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1:0", results[0].Chunk.ID)
	assert.InDelta(t, 2.0, results[0].Score, 1e-9)
}
