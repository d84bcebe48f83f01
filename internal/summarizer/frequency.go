// Package summarizer produces a short extractive overview of the
// ingested corpus, shown in the chat header and the ingest report.
package summarizer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"medrag/internal/domain"
)

// Frequency ranks sentences by normalized token frequency, stopwords
// filtered, and keeps the top ones in original order.
type Frequency struct {
	tokenRe    *regexp.Regexp
	sentenceRe *regexp.Regexp
	stopwords  map[string]struct{}
}

func New() *Frequency {
	return &Frequency{
		tokenRe:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentenceRe: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		stopwords:  stopwords(),
	}
}

// Summarize picks the maxSentences highest-scoring sentences from text,
// preserving their original order. Text without sentence punctuation is
// returned trimmed as-is.
func (f *Frequency) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	sentences := f.sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range f.tokens(sent) {
			if _, skip := f.stopwords[tok]; skip {
				continue
			}
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i, sent := range sentences {
		toks := f.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		// length normalization keeps long sentences from dominating
		if n := float64(len(toks)); n > 0 {
			score /= math.Sqrt(n)
		}
		scores[i] = ranked{i, score}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)

	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

// CorpusOverview describes the loaded corpus in one line of counts plus
// a short extract of its most representative sentences. The sample is
// capped so overview cost stays flat regardless of corpus size.
func (f *Frequency) CorpusOverview(docs []domain.Document, maxSentences int) string {
	if len(docs) == 0 {
		return "Knowledge base is empty."
	}
	categories := map[string]bool{}
	var sample strings.Builder
	const sampleBudget = 20000
	for _, doc := range docs {
		if doc.Category != "" {
			categories[doc.Category] = true
		}
		if sample.Len() < sampleBudget {
			remaining := sampleBudget - sample.Len()
			text := doc.Text
			if len(text) > remaining {
				text = text[:remaining]
			}
			sample.WriteString(text)
			sample.WriteString(" ")
		}
	}
	head := fmt.Sprintf("%d documents", len(docs))
	if n := len(categories); n > 0 {
		head += fmt.Sprintf(" across %d categories", n)
	}
	extract := f.Summarize(sample.String(), maxSentences)
	if extract == "" {
		return head + "."
	}
	return head + ". " + extract
}

func (f *Frequency) tokens(text string) []string {
	return f.tokenRe.FindAllString(strings.ToLower(text), -1)
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
