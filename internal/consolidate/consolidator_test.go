package consolidate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyon-agents/engram/internal/graph"
	"github.com/halcyon-agents/engram/internal/storage"
	"github.com/halcyon-agents/engram/pkg/types"
)

func newTestGraph(t *testing.T) *graph.Graph {
	t.Helper()
	doc, err := storage.NewDocument(filepath.Join(t.TempDir(), "graph.json"))
	require.NoError(t, err)
	g, err := graph.Open(doc)
	require.NoError(t, err)
	return g
}

func TestDue_MutationThreshold(t *testing.T) {
	g := newTestGraph(t)
	c := New(g, Config{MutationThreshold: 3, Interval: time.Hour})

	assert.False(t, c.due(), "empty graph has nothing due")

	for i := 0; i < 2; i++ {
		_, err := g.AddEntity("React", types.EntityTechnology, []string{"frontend"}, types.SourceExplicit)
		require.NoError(t, err)
	}
	assert.False(t, c.due())

	_, err := g.AddEntity("Go", types.EntityTechnology, []string{"backend"}, types.SourceExplicit)
	require.NoError(t, err)
	assert.True(t, c.due())
}

func TestDue_IntervalNeedsMutations(t *testing.T) {
	g := newTestGraph(t)
	c := New(g, Config{MutationThreshold: 100, Interval: time.Nanosecond})

	// Interval elapsed but nothing changed since the last pass.
	assert.False(t, c.due())

	_, err := g.AddEntity("React", types.EntityTechnology, nil, types.SourceExplicit)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	assert.True(t, c.due())
}

func TestRunOnce_ResetsTrigger(t *testing.T) {
	g := newTestGraph(t)
	c := New(g, Config{MutationThreshold: 2, Interval: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := g.AddEntity("React", types.EntityTechnology, []string{"frontend"}, types.SourceExplicit)
		require.NoError(t, err)
	}
	require.True(t, c.due())

	report := c.RunOnce()
	require.NotNil(t, report)
	assert.Equal(t, types.StageReinforced, firstStage(t, g, "React"))
	assert.False(t, c.due(), "pass resets the mutation counter")
}

func TestStartStop(t *testing.T) {
	g := newTestGraph(t)
	c := New(g, Config{CheckEvery: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after cancel")
	}
}

func firstStage(t *testing.T, g *graph.Graph, name string) types.MemoryStage {
	t.Helper()
	e, ok := g.GetEntity(name)
	require.True(t, ok)
	require.NotEmpty(t, e.Observations)
	return e.Observations[0].Stage
}
