package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	sqliteStore "github.com/mnemo-labs/mnemo-go/pkg/storage/sqlite"
)

func setupSQLiteTest(t *testing.T) (storage.VectorStore, func()) {
	testDBPath := "./test_mnemo.db"

	// Clean up any existing test database
	_ = os.Remove(testDBPath)

	config := &sqliteStore.Config{
		DBPath:             testDBPath,
		CollectionName:     "memories",
		EmbeddingModelDims: 4,
	}

	store, err := sqliteStore.NewClient(config)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		_ = store.Close()
		_ = os.Remove(testDBPath)
	}

	return store, cleanup
}

func TestSQLiteClient_InsertAndGet(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	memory := &storage.Memory{
		ID:                "mem-1",
		UserID:            "test_user",
		AgentID:           "test_agent",
		Hash:              "abc123",
		Content:           "Test memory content",
		Embedding:         []float64{0.1, 0.2, 0.3, 0.4},
		Metadata:          map[string]interface{}{"key": "value"},
		RetentionStrength: 1.0,
	}

	err := store.Insert(ctx, memory)
	require.NoError(t, err)

	retrieved, err := store.Get(ctx, "mem-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Test memory content", retrieved.Content)
	assert.Equal(t, "test_user", retrieved.UserID)
	assert.Equal(t, "value", retrieved.Metadata["key"])
	assert.InDelta(t, 1.0, retrieved.RetentionStrength, 0.001)
}

func TestSQLiteClient_GetScopeEnforced(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	err := store.Insert(ctx, &storage.Memory{
		ID:        "mem-1",
		UserID:    "alice",
		Content:   "Private note",
		Embedding: []float64{0.1, 0.2, 0.3, 0.4},
	})
	require.NoError(t, err)

	// Wrong user cannot read the memory
	_, err = store.Get(ctx, "mem-1", &storage.GetOptions{UserID: "bob"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The owner can
	retrieved, err := store.Get(ctx, "mem-1", &storage.GetOptions{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Private note", retrieved.Content)
}

func TestSQLiteClient_GetByHash(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	err := store.Insert(ctx, &storage.Memory{
		ID:        "mem-1",
		UserID:    "alice",
		Hash:      "hash-a",
		Content:   "Likes coffee",
		Embedding: []float64{0.1, 0.2, 0.3, 0.4},
	})
	require.NoError(t, err)

	found, err := store.GetByHash(ctx, "hash-a", &storage.GetOptions{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", found.ID)

	// Same hash under a different user is a miss
	_, err = store.GetByHash(ctx, "hash-a", &storage.GetOptions{UserID: "bob"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByHash(ctx, "unknown", &storage.GetOptions{UserID: "alice"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteClient_Search(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	memories := []*storage.Memory{
		{ID: "m1", UserID: "alice", Content: "close match", Embedding: []float64{1, 0, 0, 0}},
		{ID: "m2", UserID: "alice", Content: "far match", Embedding: []float64{0, 1, 0, 0}},
		{ID: "m3", UserID: "bob", Content: "other user", Embedding: []float64{1, 0, 0, 0}},
	}
	for _, m := range memories {
		require.NoError(t, store.Insert(ctx, m))
	}

	results, err := store.Search(ctx, []float64{1, 0, 0, 0}, &storage.SearchOptions{
		UserID: "alice",
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2, "Search must stay within the user scope")

	assert.Equal(t, "m1", results[0].ID, "Results are ordered by similarity")
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSQLiteClient_SearchMinScore(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &storage.Memory{
		ID: "m1", UserID: "alice", Content: "a", Embedding: []float64{1, 0, 0, 0},
	}))
	require.NoError(t, store.Insert(ctx, &storage.Memory{
		ID: "m2", UserID: "alice", Content: "b", Embedding: []float64{0, 1, 0, 0},
	}))

	results, err := store.Search(ctx, []float64{1, 0, 0, 0}, &storage.SearchOptions{
		UserID:   "alice",
		Limit:    10,
		MinScore: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m1", results[0].ID)
}

func TestSQLiteClient_Update(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &storage.Memory{
		ID: "m1", UserID: "alice", Content: "old content", Embedding: []float64{1, 0, 0, 0},
	}))

	before, err := store.Get(ctx, "m1", nil)
	require.NoError(t, err)

	updated, err := store.Update(ctx, "m1", "new content", []float64{0, 1, 0, 0}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, before.CreatedAt.Unix(), updated.CreatedAt.Unix(),
		"CreatedAt must be preserved across updates")

	// Scope-restricted update against the wrong user fails
	_, err = store.Update(ctx, "m1", "sneaky", []float64{0, 0, 1, 0}, &storage.UpdateOptions{UserID: "bob"})
	assert.Error(t, err)
}

func TestSQLiteClient_UpdateRetention(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &storage.Memory{
		ID: "m1", UserID: "alice", Content: "x", Embedding: []float64{1, 0, 0, 0},
		RetentionStrength: 1.0,
	}))

	require.NoError(t, store.UpdateRetention(ctx, "m1", 0.5))

	retrieved, err := store.Get(ctx, "m1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, retrieved.RetentionStrength, 0.001)
}

func TestSQLiteClient_Delete(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, &storage.Memory{
		ID: "m1", UserID: "alice", Content: "x", Embedding: []float64{1, 0, 0, 0},
	}))

	require.NoError(t, store.Delete(ctx, "m1", nil))

	_, err := store.Get(ctx, "m1", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteClient_GetAllAndDeleteAll(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	for _, m := range []*storage.Memory{
		{ID: "m1", UserID: "alice", Content: "a", Embedding: []float64{1, 0, 0, 0}},
		{ID: "m2", UserID: "alice", Content: "b", Embedding: []float64{0, 1, 0, 0}},
		{ID: "m3", UserID: "bob", Content: "c", Embedding: []float64{0, 0, 1, 0}},
	} {
		require.NoError(t, store.Insert(ctx, m))
	}

	all, err := store.GetAll(ctx, &storage.GetAllOptions{UserID: "alice", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.DeleteAll(ctx, &storage.DeleteAllOptions{UserID: "alice"}))

	all, err = store.GetAll(ctx, &storage.GetAllOptions{UserID: "alice", Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, all)

	// Other users are untouched
	all, err = store.GetAll(ctx, &storage.GetAllOptions{UserID: "bob", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteClient_UpdateRefreshesHash(t *testing.T) {
	store, cleanup := setupSQLiteTest(t)
	defer cleanup()

	ctx := context.Background()

	oldHash := storage.ContentHash("old text")
	err := store.Insert(ctx, &storage.Memory{
		ID:        "mem-1",
		UserID:    "alice",
		Hash:      oldHash,
		Content:   "old text",
		Embedding: []float64{0.1, 0.2, 0.3, 0.4},
	})
	require.NoError(t, err)

	_, err = store.Update(ctx, "mem-1", "new text", []float64{0.4, 0.3, 0.2, 0.1}, &storage.UpdateOptions{
		UserID: "alice",
	})
	require.NoError(t, err)

	// The hash lookup must follow the content: the new text resolves and
	// the stale digest no longer does.
	found, err := store.GetByHash(ctx, storage.ContentHash("new text"), &storage.GetOptions{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "mem-1", found.ID)
	assert.Equal(t, "new text", found.Content)

	_, err = store.GetByHash(ctx, oldHash, &storage.GetOptions{UserID: "alice"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
