// Package vector implements the free-text recall corpus: embedding-keyed
// chunks with cosine-similarity search. The default backend is an append-only
// JSON document scanned linearly, which is adequate at the bounded corpus
// sizes Engram handles; a pgvector-backed alternative lives in the pgvector
// subpackage for deployments already running Postgres.
package vector

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/pkg/types"
)

// Embedder turns text into an embedding vector. The external language-model
// client supplies the implementation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Match is one search hit: the chunk, its raw cosine similarity, and a 0-100
// relevance percentage for UI/context labeling.
type Match struct {
	Chunk      types.Chunk
	Similarity float64
	Relevance  int
}

// Store is the vector corpus contract shared by the document-backed default
// and the pgvector backend.
type Store interface {
	// AddChunk embeds text and appends it to the corpus, returning the
	// chunk ID. Chunks are immutable once written.
	AddChunk(ctx context.Context, text string, source types.ChunkSource) (string, error)

	// Search ranks the corpus by cosine similarity against the query
	// embedding.
	Search(ctx context.Context, queryEmbedding []float64, limit int) ([]Match, error)

	// Count returns the corpus size.
	Count(ctx context.Context) (int, error)

	// Clear empties the corpus. Only explicit bulk-clear calls this.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// DocumentStore implements Store over a single JSON document with linear
// cosine scan.
type DocumentStore struct {
	mu       sync.RWMutex
	chunks   []types.Chunk
	doc      *storage.Document
	embedder Embedder
}

// Open loads the vector corpus from doc, or starts empty when missing.
// A corrupt document is logged and quarantined; the corpus starts empty.
func Open(doc *storage.Document, embedder Embedder) (*DocumentStore, error) {
	s := &DocumentStore{doc: doc, embedder: embedder}

	var persisted struct {
		Chunks []types.Chunk `json:"chunks"`
	}
	err := doc.Load(&persisted)
	switch {
	case err == nil:
		s.chunks = persisted.Chunks
	case storage.IsNotFound(err):
		// First run.
	case storage.IsCorrupted(err):
		log.Printf("vector: %v; starting empty", err)
	default:
		return nil, fmt.Errorf("vector: failed to load document: %w", err)
	}
	return s, nil
}

// Reload replaces the in-memory corpus with the document's current contents.
// Called after an external restore rewrites the document underneath a running
// process. A missing document reloads as empty; an unreadable one leaves the
// in-memory state untouched and returns the error.
func (s *DocumentStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var persisted struct {
		Chunks []types.Chunk `json:"chunks"`
	}
	err := s.doc.Load(&persisted)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("vector: failed to reload document: %w", err)
	}
	s.chunks = persisted.Chunks
	return nil
}

// AddChunk embeds text and appends it to the corpus. The chunk is persisted
// before the call reports success.
func (s *DocumentStore) AddChunk(ctx context.Context, text string, source types.ChunkSource) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: chunk text is required", storage.ErrInvalidInput)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("vector: failed to embed chunk: %w", err)
	}

	chunk := types.Chunk{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: embedding,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	if err := s.persistLocked(); err != nil {
		s.chunks = s.chunks[:len(s.chunks)-1]
		return "", err
	}
	return chunk.ID, nil
}

// Search scans the full corpus and returns the top matches by cosine
// similarity, strongest first.
func (s *DocumentStore) Search(_ context.Context, queryEmbedding []float64, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(queryEmbedding) == 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	matches := make([]Match, 0, len(s.chunks))
	for i := range s.chunks {
		sim := Cosine(queryEmbedding, s.chunks[i].Embedding)
		if sim <= 0 {
			continue
		}
		matches = append(matches, Match{
			Chunk:      s.chunks[i],
			Similarity: sim,
			Relevance:  int(sim*100 + 0.5),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the corpus size.
func (s *DocumentStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Clear empties the corpus and persists the empty state.
func (s *DocumentStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = nil
	return s.persistLocked()
}

// Flush forces a persistence pass.
func (s *DocumentStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Close is a no-op for the document backend.
func (s *DocumentStore) Close() error { return nil }

func (s *DocumentStore) persistLocked() error {
	payload := struct {
		Chunks []types.Chunk `json:"chunks"`
	}{Chunks: s.chunks}
	if payload.Chunks == nil {
		payload.Chunks = []types.Chunk{}
	}
	if err := s.doc.Save(payload); err != nil {
		return fmt.Errorf("vector: failed to persist: %w", err)
	}
	return nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
