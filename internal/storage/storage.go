// Package storage provides durable persistence for Engram's memory stores.
//
// Each store (knowledge graph, vector corpus, skills) persists as one JSON
// document with atomic write-then-rename semantics. A corrupt document is
// detected at load time, logged, and reported as ErrCorrupted so the owning
// store can start empty instead of refusing to boot. The conversation
// history store is the exception: it is an append-only SQLite log.
package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCorrupted indicates that a persisted document failed to parse.
	// The caller is expected to log it and continue with an empty store;
	// recovery from backup belongs to the survival collaborator.
	ErrCorrupted = errors.New("persisted document is corrupted")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCorrupted reports whether err wraps ErrCorrupted.
func IsCorrupted(err error) bool {
	return errors.Is(err, ErrCorrupted)
}
