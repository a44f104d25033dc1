package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/cache"
)

func setupCacheTest(t *testing.T) (*cache.Layer, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	backend, err := cache.NewRedisBackend(context.Background(), &cache.RedisConfig{
		Addr: mr.Addr(),
	})
	require.NoError(t, err)

	layer := cache.NewLayer(backend, cache.Config{})

	cleanup := func() {
		_ = layer.Close()
	}

	return layer, mr, cleanup
}

func TestCacheLayer_Embedding(t *testing.T) {
	layer, _, cleanup := setupCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	vec := []float64{0.1, 0.2, 0.3}

	_, ok := layer.GetEmbedding(ctx, "model-a", "hello")
	assert.False(t, ok, "Cold cache misses")

	layer.SetEmbedding(ctx, "model-a", "hello", vec)

	got, ok := layer.GetEmbedding(ctx, "model-a", "hello")
	require.True(t, ok)
	assert.Equal(t, vec, got)

	// Different model never serves the same vector
	_, ok = layer.GetEmbedding(ctx, "model-b", "hello")
	assert.False(t, ok)
}

func TestCacheLayer_Search(t *testing.T) {
	layer, _, cleanup := setupCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	filters := map[string]interface{}{"agent_id": "a1"}
	results := []string{"memory one", "memory two"}

	var out []string
	ok := layer.GetSearch(ctx, "user1", "vector", "query", filters, &out)
	assert.False(t, ok)

	layer.SetSearch(ctx, "user1", "vector", "query", filters, results)

	ok = layer.GetSearch(ctx, "user1", "vector", "query", filters, &out)
	require.True(t, ok)
	assert.Equal(t, results, out)

	// Different filters key different entries
	ok = layer.GetSearch(ctx, "user1", "vector", "query", map[string]interface{}{"agent_id": "a2"}, &out)
	assert.False(t, ok)
}

func TestCacheLayer_Snapshot(t *testing.T) {
	layer, _, cleanup := setupCacheTest(t)
	defer cleanup()

	ctx := context.Background()
	snapshot := map[string]int{"memories": 3}

	var out map[string]int
	assert.False(t, layer.GetSnapshot(ctx, "user1", "agent1", &out))

	layer.SetSnapshot(ctx, "user1", "agent1", snapshot)

	require.True(t, layer.GetSnapshot(ctx, "user1", "agent1", &out))
	assert.Equal(t, snapshot, out)
}

func TestCacheLayer_InvalidateUser(t *testing.T) {
	layer, _, cleanup := setupCacheTest(t)
	defer cleanup()

	ctx := context.Background()

	layer.SetEmbedding(ctx, "model-a", "hello", []float64{0.1})
	layer.SetSearch(ctx, "user1", "vector", "query", nil, []string{"x"})
	layer.SetSnapshot(ctx, "user1", "agent1", "snap")
	layer.SetSearch(ctx, "user2", "vector", "query", nil, []string{"y"})

	layer.InvalidateUser(ctx, "user1")

	var out []string
	assert.False(t, layer.GetSearch(ctx, "user1", "vector", "query", nil, &out),
		"User search results are dropped")
	var snap string
	assert.False(t, layer.GetSnapshot(ctx, "user1", "agent1", &snap),
		"User snapshots are dropped")

	// Embeddings are content-keyed and survive invalidation
	_, ok := layer.GetEmbedding(ctx, "model-a", "hello")
	assert.True(t, ok)

	// Other users are untouched
	assert.True(t, layer.GetSearch(ctx, "user2", "vector", "query", nil, &out))
}

func TestCacheLayer_TTLExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := cache.NewRedisBackend(context.Background(), &cache.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)

	layer := cache.NewLayer(backend, cache.Config{
		SearchTTL: 5 * time.Minute,
	})
	defer func() { _ = layer.Close() }()

	ctx := context.Background()
	layer.SetSearch(ctx, "user1", "vector", "query", nil, []string{"x"})

	var out []string
	require.True(t, layer.GetSearch(ctx, "user1", "vector", "query", nil, &out))

	mr.FastForward(6 * time.Minute)

	assert.False(t, layer.GetSearch(ctx, "user1", "vector", "query", nil, &out),
		"Entries expire after their TTL")
}

func TestCacheLayer_NilLayer(t *testing.T) {
	var layer *cache.Layer

	ctx := context.Background()

	// A nil layer behaves as a permanent miss and never panics
	_, ok := layer.GetEmbedding(ctx, "model-a", "hello")
	assert.False(t, ok)
	layer.SetEmbedding(ctx, "model-a", "hello", []float64{0.1})
	layer.InvalidateUser(ctx, "user1")
	assert.NoError(t, layer.Close())
}

func TestCacheLayer_Stats(t *testing.T) {
	layer, _, cleanup := setupCacheTest(t)
	defer cleanup()

	ctx := context.Background()

	layer.GetEmbedding(ctx, "m", "miss")
	layer.SetEmbedding(ctx, "m", "hit", []float64{1})
	layer.GetEmbedding(ctx, "m", "hit")

	stats := layer.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}
