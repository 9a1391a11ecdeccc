package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many times the underlying model was hit.
type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float64{float64(len(text))}, nil
}

func TestCachedEmbedder_Hit(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "coffee")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "coffee")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls, "second call is served from cache")
	assert.Equal(t, 1, cached.Len())
}

func TestCachedEmbedder_ErrorsNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("model offline")}
	cached, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Embed(ctx, "coffee")
	require.Error(t, err)
	_, err = cached.Embed(ctx, "coffee")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls, "failures retry the model")
	assert.Zero(t, cached.Len())
}

func TestCachedEmbedder_Eviction(t *testing.T) {
	inner := &countingEmbedder{}
	cached, err := NewCachedEmbedder(inner, 2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, text := range []string{"a", "bb", "ccc"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cached.Len(), "oldest entry evicted at capacity")
}
