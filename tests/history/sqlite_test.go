package history_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/history"
	sqliteHistory "github.com/mnemo-labs/mnemo-go/pkg/history/sqlite"
)

func setupHistoryTest(t *testing.T) (history.Store, func()) {
	testDBPath := "./test_mnemo_history.db"
	_ = os.Remove(testDBPath)

	store, err := sqliteHistory.NewStore(&sqliteHistory.Config{
		DBPath: testDBPath,
		NodeID: 1,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.Remove(testDBPath)
	}

	return store, cleanup
}

func TestHistoryStore_AddAssignsID(t *testing.T) {
	store, cleanup := setupHistoryTest(t)
	defer cleanup()

	entry := &history.Entry{
		MemoryID:  "mem-1",
		NewMemory: "User likes coffee",
		Event:     history.EventAdd,
	}

	err := store.Add(context.Background(), entry)
	require.NoError(t, err)
	assert.NotZero(t, entry.ID, "The store assigns a snowflake id")
}

func TestHistoryStore_ListLifecycle(t *testing.T) {
	store, cleanup := setupHistoryTest(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	entries := []*history.Entry{
		{MemoryID: "mem-1", NewMemory: "User likes coffee", Event: history.EventAdd, UpdatedAt: base},
		{MemoryID: "mem-1", OldMemory: "User likes coffee", NewMemory: "User likes espresso", Event: history.EventUpdate, UpdatedAt: base.Add(time.Minute)},
		{MemoryID: "mem-1", OldMemory: "User likes espresso", Event: history.EventDelete, IsDeleted: true, UpdatedAt: base.Add(2 * time.Minute)},
		{MemoryID: "mem-2", NewMemory: "Unrelated", Event: history.EventAdd, UpdatedAt: base},
	}
	for _, e := range entries {
		require.NoError(t, store.Add(ctx, e))
	}

	listed, err := store.List(ctx, "mem-1")
	require.NoError(t, err)
	require.Len(t, listed, 3, "Only entries of the requested memory are listed")

	assert.Equal(t, history.EventAdd, listed[0].Event)
	assert.Equal(t, history.EventUpdate, listed[1].Event)
	assert.Equal(t, history.EventDelete, listed[2].Event)

	// The delete is a terminal entry, earlier rows are untouched
	assert.True(t, listed[2].IsDeleted)
	assert.False(t, listed[0].IsDeleted)
	assert.Equal(t, "User likes coffee", listed[1].OldMemory)
	assert.Equal(t, "User likes espresso", listed[1].NewMemory)
}

func TestHistoryStore_ListUnknownMemory(t *testing.T) {
	store, cleanup := setupHistoryTest(t)
	defer cleanup()

	listed, err := store.List(context.Background(), "no-such-memory")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestHistoryStore_Reset(t *testing.T) {
	store, cleanup := setupHistoryTest(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.Add(ctx, &history.Entry{
		MemoryID:  "mem-1",
		NewMemory: "something",
		Event:     history.EventAdd,
	}))

	require.NoError(t, store.Reset(ctx))

	listed, err := store.List(ctx, "mem-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestHistoryStore_Supersessions(t *testing.T) {
	store, cleanup := setupHistoryTest(t)
	defer cleanup()

	ctx := context.Background()

	first := &history.Supersession{
		OldMemoryID: "mem-old",
		NewMemoryID: "mem-new",
		Reason:      "negation",
		Confidence:  0.8,
	}
	require.NoError(t, store.RecordSupersession(ctx, first))
	assert.NotZero(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := &history.Supersession{
		OldMemoryID: "mem-new",
		NewMemoryID: "mem-newest",
		Reason:      "numeric",
		Confidence:  0.65,
		CreatedAt:   time.Now().Add(time.Second),
	}
	require.NoError(t, store.RecordSupersession(ctx, second))

	// mem-new appears on both sides and sees both links, oldest first.
	links, err := store.ListSupersessions(ctx, "mem-new")
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "mem-old", links[0].OldMemoryID)
	assert.Equal(t, "negation", links[0].Reason)
	assert.InDelta(t, 0.8, links[0].Confidence, 0.001)
	assert.Equal(t, "mem-newest", links[1].NewMemoryID)

	// mem-old only appears in the first link.
	links, err = store.ListSupersessions(ctx, "mem-old")
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "mem-new", links[0].NewMemoryID)

	links, err = store.ListSupersessions(ctx, "mem-unknown")
	require.NoError(t, err)
	assert.Empty(t, links)

	require.NoError(t, store.Reset(ctx))
	links, err = store.ListSupersessions(ctx, "mem-new")
	require.NoError(t, err)
	assert.Empty(t, links)
}
