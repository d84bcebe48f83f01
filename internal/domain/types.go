package domain

import (
	"strconv"
	"time"
)

// Document is a single corpus entry as supplied at ingestion time.
// Documents are immutable once stored; a corrected document is
// re-ingested under a new ID rather than mutated in place.
type Document struct {
	ID       string
	Title    string
	Source   string
	Category string
	Text     string
}

// Chunk is a bounded segment of a document, the unit of retrieval.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Title      string
	Category   string
	Text       string
}

// ChunkID builds the canonical chunk identifier from its document and position.
func ChunkID(documentID string, ordinal int) string {
	return documentID + ":" + strconv.Itoa(ordinal)
}

// ScoredChunk is a retrieval hit: a chunk plus its similarity score.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// Filter restricts a vector index query by chunk metadata.
// The zero value matches everything.
type Filter struct {
	Category string
}

// Matches reports whether the chunk satisfies the filter.
func (f Filter) Matches(c Chunk) bool {
	return f.Category == "" || f.Category == c.Category
}

// Turn records one completed query/answer exchange within a session.
type Turn struct {
	Query    string
	Answer   string
	ChunkIDs []string
	At       time.Time
}

// Context is the prompt-sized block assembled for one generation call.
// Chunks are ordered by descending retrieval score; History holds the
// prior turns that fit the token budget, oldest first.
type Context struct {
	Chunks  []ScoredChunk
	History []Turn
}

// Empty reports whether no retrieved chunk made it into the context.
func (c Context) Empty() bool { return len(c.Chunks) == 0 }

// Answer is the generation result returned to the caller.
// Grounded is false only for the fixed fallback produced when retrieval
// found nothing relevant; that case is a successful answer, not an error.
type Answer struct {
	Text      string
	Citations []string
	Grounded  bool
}
