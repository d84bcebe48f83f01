// Package generator turns an assembled context and a user query into a
// grounded answer with validated source citations.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"medrag/internal/domain"
)

// DefaultFallback is the fixed answer returned when retrieval found
// nothing relevant. It is a successful response, not an error.
const DefaultFallback = "I don't have enough information in the medical knowledge base to answer that. Please rephrase the question or consult a healthcare professional."

const systemPrompt = `You are a careful medical assistant. Answer the question using ONLY the numbered sources provided. Cite every factual statement with its source marker, e.g. [S1] or [S2]. If the sources do not contain the answer, say so plainly. Do not invent sources or draw on outside knowledge.`

// ChatClient is the language-model service boundary: one system prompt,
// one user prompt, one completion.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generator builds grounding prompts and validates model citations
// against the supplied context.
type Generator struct {
	client   ChatClient
	fallback string
}

// New creates a generator. An empty fallback selects DefaultFallback.
func New(client ChatClient, fallback string) *Generator {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Generator{client: client, fallback: fallback}
}

// Generate produces an answer for the query. An empty context short-
// circuits to the fallback answer without calling the external service.
// Citations referencing sources outside the supplied context are
// dropped rather than trusted.
func (g *Generator) Generate(ctx context.Context, query string, block domain.Context, history []domain.Turn) (domain.Answer, error) {
	if block.Empty() {
		return domain.Answer{Text: g.fallback, Grounded: false}, nil
	}
	text, err := g.client.Complete(ctx, systemPrompt, buildUserPrompt(query, block))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	return domain.Answer{
		Text:      text,
		Citations: extractCitations(text, block.Chunks),
		Grounded:  true,
	}, nil
}

// buildUserPrompt lays out sources, conversation history and the
// question. Source markers are 1-based in context order.
func buildUserPrompt(query string, block domain.Context) string {
	var b strings.Builder
	b.WriteString("Sources:\n")
	for i, sc := range block.Chunks {
		title := sc.Chunk.Title
		if title == "" {
			title = sc.Chunk.DocumentID
		}
		fmt.Fprintf(&b, "[S%d] (%s)\n%s\n\n", i+1, title, sc.Chunk.Text)
	}
	if len(block.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range block.History {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Query, turn.Answer)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", query)
	return b.String()
}

var citationRe = regexp.MustCompile(`\[S(\d+)\]`)

// extractCitations maps [S#] markers in the answer back to chunk IDs,
// preserving first-mention order and dropping markers that do not
// correspond to a supplied source.
func extractCitations(answer string, chunks []domain.ScoredChunk) []string {
	var cited []string
	seen := make(map[string]struct{})
	for _, m := range citationRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(chunks) {
			continue
		}
		id := chunks[n-1].Chunk.ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cited = append(cited, id)
	}
	return cited
}
