package embedder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of cached embeddings.
const DefaultCacheSize = 4096

// CachedEmbedder wraps an Embedder with an LRU cache keyed by input text.
// Embeddings are pure functions of their input, so concurrent inserts for
// the same key are benign; the cache uses last-write-wins semantics and is
// safe for concurrent use.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a cache of the given size.
// size <= 0 selects DefaultCacheSize.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns a cached vector when available, otherwise delegates and
// caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
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

// EmbedBatch embeds only cache misses, preserving the 1:1 positional
// correspondence between input texts and output vectors.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, t := range texts {
		if vec, ok := c.cache.Get(t); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vectors, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, vec := range vectors {
			c.cache.Add(missTexts[j], vec)
			results[missIdx[j]] = vec
		}
	}

	return results, nil
}

// Dimension returns the dimensionality of the embedding vectors.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// ModelName returns the name of the embedding model being used.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

// Ensure CachedEmbedder implements Embedder interface.
var _ Embedder = (*CachedEmbedder)(nil)
