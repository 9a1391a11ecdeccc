package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/halcyon-agents/engram/pkg/types"
)

// historySchema holds the conversation log. Append-only: turns are never
// updated, only inserted and (on bulk clear) wiped.
const historySchema = `
CREATE TABLE IF NOT EXISTS turns (
	id         TEXT PRIMARY KEY,
	role       TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_created_at ON turns(created_at);
`

// HistoryStore records conversation turns in SQLite and serves the
// recent-history window for context building.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens (or creates) the conversation log at dsn.
// Use ":memory:" for tests.
func NewHistoryStore(dsn string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load; WAL
	// lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

// Append records one conversation turn and returns it.
func (h *HistoryStore) Append(ctx context.Context, role, text string) (*types.Turn, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: turn text is required", ErrInvalidInput)
	}
	if role == "" {
		role = "user"
	}

	turn := &types.Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	_, err := h.db.ExecContext(ctx,
		`INSERT INTO turns (id, role, text, created_at) VALUES (?, ?, ?, ?)`,
		turn.ID, turn.Role, turn.Text, turn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append turn: %w", err)
	}
	return turn, nil
}

// Recent returns the last n turns in chronological order.
func (h *HistoryStore) Recent(ctx context.Context, n int) ([]types.Turn, error) {
	if n <= 0 {
		return []types.Turn{}, nil
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, role, text, created_at FROM turns ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent turns: %w", err)
	}
	defer rows.Close()

	var turns []types.Turn
	for rows.Next() {
		var t types.Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	// Newest-first from the query; flip to chronological for context replay.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Before returns up to n turns older than the given time, oldest first.
// Used by conversation summarization to drain aged turns into the vector
// store.
func (h *HistoryStore) Before(ctx context.Context, cutoff time.Time, n int) ([]types.Turn, error) {
	if n <= 0 {
		return []types.Turn{}, nil
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, role, text, created_at FROM turns WHERE created_at < ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		cutoff.UTC(), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []types.Turn
	for rows.Next() {
		var t types.Turn
		if err := rows.Scan(&t.ID, &t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// DeleteTurns removes the given turns by ID. Summarization calls this after
// a batch has been folded into the vector corpus, so the same turns are never
// summarized twice. Deleting by ID rather than by cutoff keeps turns that the
// batch limit left behind; they drain on the next pass.
func (h *HistoryStore) DeleteTurns(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := h.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM turns WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	return nil
}

// Count returns the number of recorded turns.
func (h *HistoryStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

// Clear wipes the conversation log. Only the explicit bulk-clear operation
// calls this.
func (h *HistoryStore) Clear(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, `DELETE FROM turns`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}
