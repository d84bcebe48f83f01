// Package pgvector provides a PostgreSQL-backed vector index using the
// pgvector extension. Nearest-neighbor search happens server-side over
// an HNSW index, which suits corpora too large for brute force.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"medrag/internal/domain"
	"medrag/internal/vectorstore"
)

// Index stores chunk vectors in a pgvector-enabled PostgreSQL database.
type Index struct {
	db        *sql.DB
	dimension int
	metric    vectorstore.Metric
}

// New connects to the database, provisions the schema and pins the
// vector dimension.
func New(dsn string, dimension int, metric vectorstore.Metric) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: index dimension %d", domain.ErrConfig, dimension)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	s := &Index{db: db, dimension: dimension, metric: metric}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Index) migrate() error {
	ops := "vector_cosine_ops"
	if s.metric == vectorstore.Dot {
		ops = "vector_ip_ops"
	}
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal     INTEGER NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding %s)`, ops),
		`CREATE INDEX IF NOT EXISTS idx_chunks_category ON chunks (category)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Upsert stores or replaces vectors by chunk ID inside one transaction.
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	defer tx.Rollback()
	for i := range chunks {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, ordinal, title, category, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				ordinal     = EXCLUDED.ordinal,
				title       = EXCLUDED.title,
				category    = EXCLUDED.category,
				content     = EXCLUDED.content,
				embedding   = EXCLUDED.embedding
		`, chunks[i].ID, chunks[i].DocumentID, chunks[i].Ordinal, chunks[i].Title, chunks[i].Category, chunks[i].Text, formatVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("upserting chunk %s: %w", chunks[i].ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Query returns up to k nearest chunks. Cosine uses the <=> distance
// operator, dot product the <#> operator (which pgvector negates).
func (s *Index) Query(ctx context.Context, vector []float64, k int, filter domain.Filter) ([]domain.ScoredChunk, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has dimension %d, index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	scoreExpr := `1 - (embedding <=> $1)`
	orderExpr := `embedding <=> $1`
	if s.metric == vectorstore.Dot {
		scoreExpr = `-(embedding <#> $1)`
		orderExpr = `embedding <#> $1`
	}
	query := fmt.Sprintf(`
		SELECT id, document_id, ordinal, title, category, content, %s AS score
		FROM chunks`, scoreExpr)
	args := []any{formatVector(vector)}
	if filter.Category != "" {
		query += ` WHERE category = $2`
		args = append(args, filter.Category)
	}
	query += fmt.Sprintf(` ORDER BY %s, id LIMIT %d`, orderExpr, k)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var sc domain.ScoredChunk
		if err := rows.Scan(&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Ordinal, &sc.Chunk.Title, &sc.Chunk.Category, &sc.Chunk.Text, &sc.Score); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// Count returns the number of stored chunks.
func (s *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *Index) Close() error { return s.db.Close() }

// formatVector renders a vector in pgvector text form: "[0.1,0.2]".
func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
