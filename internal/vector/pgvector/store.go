// Package pgvector implements the vector.Store contract over PostgreSQL with
// the pgvector extension, for deployments that already run Postgres and want
// index-accelerated cosine search instead of the default document scan.
package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	pgv "github.com/pgvector/pgvector-go"

	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/internal/vector"
	"github.com/halcyon-agents/engram/pkg/types"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS chunks (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	embedding  vector(%d) NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// Store implements vector.Store using pgvector cosine distance.
type Store struct {
	db       *sql.DB
	embedder vector.Embedder
}

// Open connects to Postgres, ensures the pgvector extension and chunk table
// exist, and returns the store. dimension is the embedding width of the
// configured model.
func Open(dsn string, dimension int, embedder vector.Embedder) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to connect: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(schema, dimension)); err != nil {
		db.Close()
		return nil, fmt.Errorf("pgvector: failed to create schema: %w", err)
	}

	return &Store{db: db, embedder: embedder}, nil
}

// AddChunk embeds text and inserts it. Chunks are immutable; there is no
// update path.
func (s *Store) AddChunk(ctx context.Context, text string, source types.ChunkSource) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: chunk text is required", storage.ErrInvalidInput)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("pgvector: failed to embed chunk: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, text, embedding, source, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, text, toVector(embedding), string(source), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("pgvector: failed to insert chunk: %w", err)
	}
	return id, nil
}

// Search ranks chunks by cosine distance using the <=> operator.
func (s *Store) Search(ctx context.Context, queryEmbedding []float64, limit int) ([]vector.Match, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(queryEmbedding) == 0 {
		return []vector.Match{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, source, created_at, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2`,
		toVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search failed: %w", err)
	}
	defer rows.Close()

	var matches []vector.Match
	for rows.Next() {
		var m vector.Match
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Text, &m.Chunk.Source, &m.Chunk.CreatedAt, &m.Similarity); err != nil {
			return nil, fmt.Errorf("pgvector: failed to scan match: %w", err)
		}
		if m.Similarity <= 0 {
			continue
		}
		m.Relevance = int(m.Similarity*100 + 0.5)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Count returns the corpus size.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: failed to count chunks: %w", err)
	}
	return n, nil
}

// Clear empties the corpus.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("pgvector: failed to clear chunks: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// toVector converts a float64 embedding into the float32 shape pgvector
// expects on the wire.
func toVector(embedding []float64) pgv.Vector {
	f32 := make([]float32, len(embedding))
	for i, v := range embedding {
		f32[i] = float32(v)
	}
	return pgv.NewVector(f32)
}
