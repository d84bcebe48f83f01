// Package sqlite provides a persistent vector index backed by SQLite.
// Vectors and chunk metadata are written through to disk; similarity
// search runs over an in-memory mirror that is rebuilt on open, so a
// reloaded index is functionally equivalent to the pre-shutdown state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	ordinal     INTEGER NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks(category);
`

type entry struct {
	chunk  domain.Chunk
	vector []float64
}

// Index is a SQLite-backed vector index.
type Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	dimension int
	metric    vectorstore.Metric
	entries   map[string]entry
}

// New opens (or creates) the index at path. Dimension and metric are
// fixed at first creation; reopening with different values fails.
func New(path string, dimension int, metric vectorstore.Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", domain.ErrConfig, dimension)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	s := &Index{
		db:        db,
		dimension: dimension,
		metric:    metric,
		entries:   make(map[string]entry),
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := s.checkMeta(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return s, nil
}

// checkMeta pins dimension and metric on first use and verifies them on
// every subsequent open.
func (s *Index) checkMeta() error {
	stored := map[string]string{}
	rows, err := s.db.Query(`SELECT key, value FROM index_meta`)
	if err != nil {
		return fmt.Errorf("reading index meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		stored[k] = v
	}
	if err := rows.Err(); err != nil {
		return err
	}
	want := map[string]string{
		"dimension": fmt.Sprintf("%d", s.dimension),
		"metric":    string(s.metric),
	}
	if len(stored) == 0 {
		for k, v := range want {
			if _, err := s.db.Exec(`INSERT INTO index_meta(key, value) VALUES(?, ?)`, k, v); err != nil {
				return fmt.Errorf("writing index meta: %w", err)
			}
		}
		return nil
	}
	for k, v := range want {
		if stored[k] != v {
			return fmt.Errorf("%w: index %s is %s, configured %s", domain.ErrConfig, k, stored[k], v)
		}
	}
	return nil
}

func (s *Index) load() error {
	rows, err := s.db.Query(`SELECT id, document_id, ordinal, title, category, content, embedding FROM chunks`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var ch domain.Chunk
		var blob []byte
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Ordinal, &ch.Title, &ch.Category, &ch.Text, &blob); err != nil {
			return err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", ch.ID, err)
		}
		s.entries[ch.ID] = entry{chunk: ch, vector: vec}
	}
	return rows.Err()
}

// Upsert writes chunks and vectors to disk and the in-memory mirror.
// The whole call is rejected when any vector has the wrong dimension.
func (s *Index) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: chunk %s has dimension %d, index wants %d",
				domain.ErrDimensionMismatch, chunks[i].ID, len(v), s.dimension)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	defer tx.Rollback()
	for i := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, title, category, content, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				document_id = excluded.document_id,
				ordinal     = excluded.ordinal,
				title       = excluded.title,
				category    = excluded.category,
				content     = excluded.content,
				embedding   = excluded.embedding
		`, chunks[i].ID, chunks[i].DocumentID, chunks[i].Ordinal, chunks[i].Title, chunks[i].Category, chunks[i].Text, encodeVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("upserting chunk %s: %w", chunks[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	for i := range chunks {
		s.entries[chunks[i].ID] = entry{chunk: chunks[i], vector: vectors[i]}
	}
	return nil
}

// Query searches the in-memory mirror. An empty index yields an empty
// result.
func (s *Index) Query(ctx context.Context, vector []float64, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]domain.ScoredChunk, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.Matches(e.chunk) {
			continue
		}
		results = append(results, domain.ScoredChunk{
			Chunk: e.chunk,
			Score: vectorstore.Similarity(s.metric, vector, e.vector),
		})
	}
	return vectorstore.Rank(results, k), nil
}

// Count returns the number of stored chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close closes the database.
func (s *Index) Close() error { return s.db.Close() }

// encodeVector packs a vector as little-endian float64 bits.
func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(blob []byte) ([]float64, error) {
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 8", len(blob))
	}
	v := make([]float64, len(blob)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return v, nil
}
