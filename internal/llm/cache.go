package llm

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder wraps an EmbeddingGenerator with an LRU cache keyed by the
// exact input text. Context building embeds the same query and the same
// recurring facts often enough that the cache saves a meaningful share of
// round trips to the model service.
type CachedEmbedder struct {
	inner EmbeddingGenerator
	cache *lru.Cache[string, []float64]
}

// NewCachedEmbedder wraps inner with a cache of the given size (default 512).
func NewCachedEmbedder(inner EmbeddingGenerator, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, []float64](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector when available, otherwise delegates and
// caches the result. Errors are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// Len reports the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}
