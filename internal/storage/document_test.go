package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestDocument_SaveLoadRoundTrip(t *testing.T) {
	doc, err := NewDocument(filepath.Join(t.TempDir(), "sample.json"))
	require.NoError(t, err)

	require.NoError(t, doc.Save(sample{Name: "graph", Count: 7}))

	var got sample
	require.NoError(t, doc.Load(&got))
	assert.Equal(t, sample{Name: "graph", Count: 7}, got)
}

func TestDocument_SaveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	doc, err := NewDocument(filepath.Join(dir, "sample.json"))
	require.NoError(t, err)

	require.NoError(t, doc.Save(sample{Name: "first"}))
	require.NoError(t, doc.Save(sample{Name: "second"}))

	var got sample
	require.NoError(t, doc.Load(&got))
	assert.Equal(t, "second", got.Name)

	// No temp files left behind after a clean save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sample.json", entries[0].Name())
}

func TestDocument_LoadMissingIsNotFound(t *testing.T) {
	doc, err := NewDocument(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	var got sample
	err = doc.Load(&got)
	assert.True(t, IsNotFound(err))
}

func TestDocument_LoadCorruptQuarantines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	doc, err := NewDocument(path)
	require.NoError(t, err)

	var got sample
	err = doc.Load(&got)
	assert.True(t, IsCorrupted(err))

	// The broken file is preserved for inspection, not destroyed.
	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// A subsequent save starts a fresh document.
	require.NoError(t, doc.Save(sample{Name: "fresh"}))
	require.NoError(t, doc.Load(&got))
	assert.Equal(t, "fresh", got.Name)
}

func TestDocument_CreatesParentDir(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b", "sample.json")
	doc, err := NewDocument(nested)
	require.NoError(t, err)
	require.NoError(t, doc.Save(sample{Name: "deep"}))

	_, err = os.Stat(nested)
	assert.NoError(t, err)
}

func TestDocument_EmptyPathRejected(t *testing.T) {
	_, err := NewDocument("")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocument_Remove(t *testing.T) {
	doc, err := NewDocument(filepath.Join(t.TempDir(), "sample.json"))
	require.NoError(t, err)

	require.NoError(t, doc.Remove(), "removing a missing document is fine")
	require.NoError(t, doc.Save(sample{Name: "x"}))
	require.NoError(t, doc.Remove())

	var got sample
	assert.True(t, IsNotFound(doc.Load(&got)))
}
