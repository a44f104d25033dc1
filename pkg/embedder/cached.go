package embedder

import (
	"context"

	"github.com/mnemo-labs/mnemo-go/pkg/cache"
)

// Cached wraps a Provider with a cache layer so repeated texts skip the
// embedding API entirely. Vectors are keyed by model name and text hash, so
// swapping models never serves stale vectors.
type Cached struct {
	provider Provider
	cache    *cache.Layer
}

// NewCached wraps provider with the given cache layer.
// A nil cache layer is allowed; the wrapper then forwards every call.
func NewCached(provider Provider, layer *cache.Layer) *Cached {
	return &Cached{provider: provider, cache: layer}
}

// Embed returns the cached vector for text if present, otherwise embeds via
// the underlying provider and stores the result.
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := c.cache.GetEmbedding(ctx, c.provider.Model(), text); ok {
		return vec, nil
	}

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.SetEmbedding(ctx, c.provider.Model(), text, vec)
	return vec, nil
}

// EmbedBatch embeds texts, serving cached entries where possible and calling
// the provider only for the remainder. Result order matches the input.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.GetEmbedding(ctx, c.provider.Model(), text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := c.provider.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		results[missingIdx[j]] = vec
		c.cache.SetEmbedding(ctx, c.provider.Model(), missing[j], vec)
	}

	return results, nil
}

// Dimensions returns the underlying provider's vector dimensions.
func (c *Cached) Dimensions() int {
	return c.provider.Dimensions()
}

// Model returns the underlying provider's model name.
func (c *Cached) Model() string {
	return c.provider.Model()
}

// Close closes the underlying provider. The cache layer is shared and is
// closed by its owner, not here.
func (c *Cached) Close() error {
	return c.provider.Close()
}
