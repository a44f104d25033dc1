package graph_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/graph"
	"github.com/mnemo-labs/mnemo-go/pkg/graph/sqlitegraph"
)

func setupGraphTest(t *testing.T) (graph.Store, func()) {
	testDBPath := "./test_mnemo_graph.db"
	_ = os.Remove(testDBPath)

	store, err := sqlitegraph.NewStore(&sqlitegraph.Config{DBPath: testDBPath})
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.Remove(testDBPath)
	}

	return store, cleanup
}

func TestSQLiteGraph_MergeAndGetAll(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "alice"}

	rel := &graph.Relation{Source: "alice", Relationship: "owns", Destination: "a dog"}
	err := store.MergeRelation(ctx, scope, rel, []float64{1, 0, 0}, []float64{0, 1, 0})
	require.NoError(t, err)

	all, err := store.GetAll(ctx, scope, 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice", all[0].Source)
	assert.Equal(t, "owns", all[0].Relationship)
	assert.Equal(t, "a dog", all[0].Destination)

	// Merging the same triple again does not duplicate the edge
	require.NoError(t, store.MergeRelation(ctx, scope, rel, []float64{1, 0, 0}, []float64{0, 1, 0}))
	all, err = store.GetAll(ctx, scope, 100)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSQLiteGraph_ScopeIsolation(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	aliceScope := graph.Scope{UserID: "alice"}
	bobScope := graph.Scope{UserID: "bob"}

	require.NoError(t, store.MergeRelation(ctx, aliceScope,
		&graph.Relation{Source: "alice", Relationship: "lives_in", Destination: "berlin"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))

	all, err := store.GetAll(ctx, bobScope, 100)
	require.NoError(t, err)
	assert.Empty(t, all, "Graph partitions are isolated per user")
}

func TestSQLiteGraph_FindSimilarNode(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "alice"}

	require.NoError(t, store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "my_dog", Relationship: "named", Destination: "rex"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))

	// A probe close to the stored embedding matches the node
	node, err := store.FindSimilarNode(ctx, scope, []float64{0.99, 0.1, 0}, 0.7)
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "my_dog", node.Name)
	assert.Greater(t, node.Similarity, 0.7)

	// An orthogonal probe does not
	node, err = store.FindSimilarNode(ctx, scope, []float64{0, 0, 1}, 0.7)
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestSQLiteGraph_NeighborRelations(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "alice"}

	require.NoError(t, store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "alice", Relationship: "owns", Destination: "rex"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))
	require.NoError(t, store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "rex", Relationship: "is_a", Destination: "dog"},
		[]float64{0, 1, 0}, []float64{0, 0, 1}))

	// Probing near "rex" finds edges in both directions
	rels, err := store.NeighborRelations(ctx, scope, []float64{0, 1, 0}, 0.7, 10)
	require.NoError(t, err)
	assert.Len(t, rels, 2)
}

func TestSQLiteGraph_DeleteRelation(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "alice"}

	rel := &graph.Relation{Source: "alice", Relationship: "lives_in", Destination: "hamburg"}
	require.NoError(t, store.MergeRelation(ctx, scope, rel, []float64{1, 0, 0}, []float64{0, 1, 0}))

	require.NoError(t, store.DeleteRelation(ctx, scope, rel))

	all, err := store.GetAll(ctx, scope, 100)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteGraph_DeleteAll(t *testing.T) {
	store, cleanup := setupGraphTest(t)
	defer cleanup()

	ctx := context.Background()
	aliceScope := graph.Scope{UserID: "alice"}
	bobScope := graph.Scope{UserID: "bob"}

	require.NoError(t, store.MergeRelation(ctx, aliceScope,
		&graph.Relation{Source: "a", Relationship: "r", Destination: "b"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))
	require.NoError(t, store.MergeRelation(ctx, bobScope,
		&graph.Relation{Source: "c", Relationship: "r", Destination: "d"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))

	require.NoError(t, store.DeleteAll(ctx, aliceScope))

	all, err := store.GetAll(ctx, aliceScope, 100)
	require.NoError(t, err)
	assert.Empty(t, all)

	all, err = store.GetAll(ctx, bobScope, 100)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestScopeIdentity(t *testing.T) {
	assert.Equal(t, "user_id: alice", graph.Scope{UserID: "alice"}.Identity())
	assert.Equal(t, "user_id: alice, agent_id: a1",
		graph.Scope{UserID: "alice", AgentID: "a1"}.Identity())
	assert.Equal(t, "user_id: alice, agent_id: a1, run_id: r1",
		graph.Scope{UserID: "alice", AgentID: "a1", RunID: "r1"}.Identity())
}

func TestSanitizeRelationship(t *testing.T) {
	assert.Equal(t, "lives_in", graph.SanitizeRelationship("lives-in"))
	assert.Equal(t, "works_slash_at", graph.SanitizeRelationship("works/at"))
	assert.Equal(t, "likes", graph.SanitizeRelationship("__likes__"))
	assert.Equal(t, "friend_ampersand_ally", graph.SanitizeRelationship("friend&ally"))
}
