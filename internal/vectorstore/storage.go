// Package vectorstore holds the similarity metric shared by all vector
// index backends and the ranking rules that keep their results
// deterministic.
package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"medrag/internal/domain"
)

// Metric is the similarity measure of an index. It is chosen once at
// index creation and fixed thereafter.
type Metric string

const (
	Cosine Metric = "cosine"
	Dot    Metric = "dot"
)

// ParseMetric validates a configured metric name. Empty defaults to cosine.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case "", Cosine:
		return Cosine, nil
	case Dot:
		return Dot, nil
	default:
		return "", fmt.Errorf("%w: unknown similarity metric %q", domain.ErrConfig, name)
	}
}

// Similarity scores two vectors of equal length under the metric.
func Similarity(m Metric, a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if m == Dot {
		return dot
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank orders results by descending score, breaking ties by ascending
// chunk ID, and truncates to k.
func Rank(results []domain.ScoredChunk, k int) []domain.ScoredChunk {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
