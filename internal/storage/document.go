package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Document persists one store's state as a JSON file with atomic
// write-then-rename semantics. A crash between mutation and persistence can
// at worst leave a stale temp file behind; the named document is always
// either the previous complete state or the new complete state.
type Document struct {
	path string
}

// NewDocument creates a document handle for the given path and ensures the
// parent directory exists.
func NewDocument(path string) (*Document, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: document path is required", ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Document{path: path}, nil
}

// Path returns the on-disk location of the document.
func (d *Document) Path() string {
	return d.path
}

// Save marshals v and atomically replaces the document: write to a temp file
// in the same directory, fsync, then rename over the target.
func (d *Document) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

// Load unmarshals the document into v. A missing file returns ErrNotFound so
// callers can start empty on first run. A file that exists but fails to parse
// returns ErrCorrupted; the broken file is preserved under a .corrupt suffix
// for the backup collaborator to inspect.
func (d *Document) Load(v any) error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read document: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		// Keep the evidence around; the next Save writes a fresh document.
		quarantine := d.path + ".corrupt"
		if renameErr := os.Rename(d.path, quarantine); renameErr == nil {
			return fmt.Errorf("%w: %v (moved to %s)", ErrCorrupted, err, quarantine)
		}
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return nil
}

// Remove deletes the document file. Missing files are not an error.
func (d *Document) Remove() error {
	if err := os.Remove(d.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove document: %w", err)
	}
	return nil
}
