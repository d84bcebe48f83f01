package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"medrag/internal/domain"
)

func TestSummarize_KeepsTopSentencesInOrder(t *testing.T) {
	text := "Aspirin reduces fever. The weather was cloudy yesterday. Aspirin also relieves pain and aspirin thins blood. Lunch is at noon."
	got := New().Summarize(text, 2)

	assert.Contains(t, got, "Aspirin reduces fever.")
	assert.Contains(t, got, "aspirin thins blood.")
	assert.Less(t, strings.Index(got, "fever"), strings.Index(got, "thins"), "selected sentences keep document order")
	assert.NotContains(t, got, "Lunch")
}

func TestSummarize_NoSentencePunctuation(t *testing.T) {
	assert.Equal(t, "just a fragment", New().Summarize("  just a fragment  ", 3))
}

func TestCorpusOverview(t *testing.T) {
	f := New()
	assert.Equal(t, "Knowledge base is empty.", f.CorpusOverview(nil, 2))

	docs := []domain.Document{
		{ID: "a", Category: "cardiology", Text: "Beta blockers lower heart rate."},
		{ID: "b", Category: "general", Text: "Aspirin reduces fever."},
		{ID: "c", Category: "general", Text: "Ibuprofen relieves pain."},
	}
	got := f.CorpusOverview(docs, 2)
	assert.Contains(t, got, "3 documents across 2 categories")
}
