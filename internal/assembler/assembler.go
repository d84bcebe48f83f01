// Package assembler selects retrieved chunks and prior turns into a
// prompt-sized context block under a token budget.
package assembler

import "medrag/internal/domain"

// Assembler builds generation contexts. Token counts are approximated as
// length/4, the usual characters-per-token heuristic for English text;
// the budget is therefore a soft bound on prompt size, not an exact one.
type Assembler struct {
	tokenBudget  int
	historyTurns int
}

// New configures the assembler. historyTurns caps how many of the most
// recent turns are considered for inclusion.
func New(tokenBudget, historyTurns int) *Assembler {
	if tokenBudget <= 0 {
		tokenBudget = 2048
	}
	if historyTurns < 0 {
		historyTurns = 0
	}
	return &Assembler{tokenBudget: tokenBudget, historyTurns: historyTurns}
}

// Assemble orders chunks by descending score, removes duplicates of the
// same document position and greedily packs whole chunks under the
// budget; a chunk that does not fit is excluded, never truncated. Prior
// turns fill whatever budget remains, newest first. Empty retrieval
// yields an empty context.
func (a *Assembler) Assemble(query string, results []domain.ScoredChunk, history []domain.Turn) domain.Context {
	var block domain.Context
	if len(results) == 0 {
		return block
	}
	remaining := a.tokenBudget - estimateTokens(query)

	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		if _, dup := seen[res.Chunk.ID]; dup {
			continue
		}
		seen[res.Chunk.ID] = struct{}{}
		cost := estimateTokens(res.Chunk.Text)
		if cost > remaining {
			continue
		}
		block.Chunks = append(block.Chunks, res)
		remaining -= cost
	}
	if block.Empty() {
		return domain.Context{}
	}

	recent := history
	if len(recent) > a.historyTurns {
		recent = recent[len(recent)-a.historyTurns:]
	}
	// Walk newest-first so the freshest turns win the budget, then
	// restore chronological order for the prompt.
	var picked []domain.Turn
	for i := len(recent) - 1; i >= 0; i-- {
		cost := estimateTokens(recent[i].Query) + estimateTokens(recent[i].Answer)
		if cost > remaining {
			break
		}
		picked = append(picked, recent[i])
		remaining -= cost
	}
	for i := len(picked) - 1; i >= 0; i-- {
		block.History = append(block.History, picked[i])
	}
	return block
}

// estimateTokens approximates the token count of s.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
