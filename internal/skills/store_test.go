package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/pkg/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skills.json")
	doc, err := storage.NewDocument(path)
	require.NoError(t, err)
	s, err := Open(doc)
	require.NoError(t, err)
	return s, path
}

func TestAddAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	skill, err := s.Add("deploy service", "roll out a new version",
		[]string{"build image", "push", "apply manifest"}, []string{"Work", "work", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, skill.Domains, "domains are lowercased and deduplicated")

	got, ok := s.Get("Deploy Service")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, "roll out a new version", got.Description)
	assert.Len(t, got.Steps, 3)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestAddUpdatesExisting(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("deploy service", "old description", []string{"step"}, []string{"work"})
	require.NoError(t, err)
	_, err = s.Add("Deploy Service", "new description", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Count())
	got, _ := s.Get("deploy service")
	assert.Equal(t, "new description", got.Description)
	assert.Equal(t, []string{"step"}, got.Steps, "empty steps leave the old ones")
	assert.Equal(t, []string{"work"}, got.Domains)
}

func TestAddValidation(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Add("  ", "desc", nil, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSearchTextAndDomain(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("deploy service", "roll out a new version", nil, []string{"work"})
	require.NoError(t, err)
	_, err = s.Add("meal prep", "plan the week's meals", nil, []string{"health"})
	require.NoError(t, err)

	results := s.Search("deploy", 5, types.Situation{}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "deploy service", results[0].Skill.Name)

	// Domain affinity surfaces a skill even with no text match.
	results = s.Search("unrelated query", 5, types.Situation{Primary: []string{"health"}}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "meal prep", results[0].Skill.Name)
}

func TestSearchDomainBoostReorders(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("review budget", "check spending against plan", nil, []string{"finance"})
	require.NoError(t, err)
	_, err = s.Add("review code", "check the diff against style", nil, []string{"work"})
	require.NoError(t, err)

	// Both match "review" identically; the situation breaks the tie.
	results := s.Search("review", 5, types.Situation{Primary: []string{"finance"}}, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "review budget", results[0].Skill.Name)
}

func TestSearchUsageBoost(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("plan alpha", "planning approach one", nil, nil)
	require.NoError(t, err)
	_, err = s.Add("plan beta", "planning approach two", nil, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordUse("plan beta"))
	}

	results := s.Search("plan", 5, types.Situation{}, nil)
	require.Len(t, results, 2)
	assert.Equal(t, "plan beta", results[0].Skill.Name, "frequently used skill ranks first")
}

func TestRecordUse(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Add("deploy service", "desc", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.RecordUse("DEPLOY SERVICE"))
	got, _ := s.Get("deploy service")
	assert.Equal(t, 1, got.UsageCount)
	assert.False(t, got.LastUsedAt.IsZero())

	assert.ErrorIs(t, s.RecordUse("missing"), storage.ErrNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, path := newTestStore(t)

	_, err := s.Add("deploy service", "desc", []string{"a", "b"}, []string{"work"})
	require.NoError(t, err)
	require.NoError(t, s.RecordUse("deploy service"))

	doc, err := storage.NewDocument(path)
	require.NoError(t, err)
	reopened, err := Open(doc)
	require.NoError(t, err)

	got, ok := reopened.Get("deploy service")
	require.True(t, ok)
	assert.Equal(t, 1, got.UsageCount)
	assert.Equal(t, []string{"a", "b"}, got.Steps)
}

func TestReload_ReplacesSkillsFromRestoredDocument(t *testing.T) {
	s, path := newTestStore(t)

	_, err := s.Add("old habit", "superseded by the restore", nil, nil)
	require.NoError(t, err)

	// A backup restore rewrites the document underneath the running process.
	restored := `{"skills":[{"name":"triage incident","description":"page, mitigate, write up"}]}`
	require.NoError(t, os.WriteFile(path, []byte(restored), 0o600))

	require.NoError(t, s.Reload())

	assert.Equal(t, 1, s.Count())
	got, ok := s.Get("Triage Incident")
	require.True(t, ok)
	assert.Equal(t, "page, mitigate, write up", got.Description)
	_, ok = s.Get("old habit")
	assert.False(t, ok, "pre-restore state must not survive a reload")
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Add("deploy service", "desc", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	assert.Zero(t, s.Count())
}
