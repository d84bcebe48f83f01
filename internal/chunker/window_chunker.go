package chunker

import (
	"fmt"
	"strings"

	"medrag/internal/domain"
)

// WindowChunker splits document text into fixed-budget chunks with a
// configured overlap between adjacent chunks. Cuts prefer sentence or
// whitespace boundaries within a tolerance window before falling back to
// a hard cut, so clinical statements are not severed mid-sentence.
type WindowChunker struct {
	maxChars  int
	overlap   int
	tolerance int
}

// New validates the chunking parameters. Overlap must be strictly
// smaller than the chunk budget or adjacent windows would never advance.
func New(maxChars, overlap int) (*WindowChunker, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("%w: max chunk size %d", domain.ErrConfig, maxChars)
	}
	if overlap < 0 || overlap >= maxChars {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrConfig, overlap, maxChars)
	}
	return &WindowChunker{
		maxChars:  maxChars,
		overlap:   overlap,
		tolerance: maxChars / 5,
	}, nil
}

// Chunk covers the full document text with overlapping windows. Adjacent
// chunks share exactly the configured overlap; the final chunk may share
// more when the remaining tail is shorter than one step.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	runes := []rune(document.Text)
	if strings.TrimSpace(document.Text) == "" {
		return nil, nil
	}
	var chunks []domain.Chunk
	start := 0
	for ordinal := 0; ; ordinal++ {
		end := start + c.maxChars
		if end >= len(runes) {
			end = len(runes)
		} else if cut := c.boundary(runes, start, end); cut > start {
			end = cut
		}
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(document.ID, ordinal),
			DocumentID: document.ID,
			Ordinal:    ordinal,
			Title:      document.Title,
			Category:   document.Category,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
		start = end - c.overlap
	}
	return chunks, nil
}

// boundary searches backward from end within the tolerance window for a
// sentence end, then for any whitespace. Returns end when no boundary is
// found, which means a hard cut. The window never reaches back into the
// overlap region, so every chunk advances past its predecessor.
func (c *WindowChunker) boundary(runes []rune, start, end int) int {
	lo := end - c.tolerance
	if lo <= start+c.overlap {
		lo = start + c.overlap + 1
	}
	for i := end - 1; i >= lo; i-- {
		if isSentenceEnd(runes[i]) && (i+1 == len(runes) || isSpace(runes[i+1])) {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(r rune) bool { return r == '.' || r == '!' || r == '?' }

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }
