package core_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/cache"
	mnemo "github.com/mnemo-labs/mnemo-go/pkg/core"
	"github.com/mnemo-labs/mnemo-go/pkg/graph"
	"github.com/mnemo-labs/mnemo-go/pkg/graph/sqlitegraph"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
	sqliteHistory "github.com/mnemo-labs/mnemo-go/pkg/history/sqlite"
	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	sqliteStore "github.com/mnemo-labs/mnemo-go/pkg/storage/sqlite"
)

// stubProvider serves the client's three LLM entry points from canned
// responses: fact extraction reads messagesResp, merge decisions read
// generateResp, and graph tool calls are answered per tool name.
type stubProvider struct {
	messagesResp  string
	generateResp  string
	toolResponses map[string]*llm.Response
	toolCalls     map[string]int
	err           error
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		toolResponses: map[string]*llm.Response{},
		toolCalls:     map[string]int{},
	}
}

func (s *stubProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return s.generateResp, s.err
}

func (s *stubProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return s.messagesResp, s.err
}

func (s *stubProvider) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.GenerateOption) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	name := tools[0].Name
	s.toolCalls[name]++
	if resp, ok := s.toolResponses[name]; ok {
		return resp, nil
	}
	return &llm.Response{}, nil
}

func (s *stubProvider) Close() error { return nil }

// stubEmbedder returns fixed vectors per text so similarity scores are
// deterministic. Texts without a fixture get a shared default vector.
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if vec, ok := s.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0.577, 0.577, 0.577}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 3 }
func (s *stubEmbedder) Model() string   { return "stub" }
func (s *stubEmbedder) Close() error    { return nil }

func newVectorStore(t *testing.T, path string) (storage.VectorStore, func()) {
	_ = os.Remove(path)
	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath:             path,
		CollectionName:     "memories",
		EmbeddingModelDims: 3,
	})
	require.NoError(t, err)
	return store, func() {
		_ = store.Close()
		_ = os.Remove(path)
	}
}

func newHistoryStore(t *testing.T, path string) (history.Store, func()) {
	_ = os.Remove(path)
	store, err := sqliteHistory.NewStore(&sqliteHistory.Config{
		DBPath: path,
		NodeID: 1,
	})
	require.NoError(t, err)
	return store, func() {
		_ = store.Close()
		_ = os.Remove(path)
	}
}

func newCacheLayer(t *testing.T) (*cache.Layer, func()) {
	mr := miniredis.RunT(t)
	backend, err := cache.NewRedisBackend(context.Background(), &cache.RedisConfig{
		Addr: mr.Addr(),
	})
	require.NoError(t, err)
	layer := cache.NewLayer(backend, cache.Config{})
	return layer, func() {
		_ = layer.Close()
	}
}

func TestClient_RequiresScope(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_scope.db")
	defer cleanup()

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      newStubProvider(),
		Embedder: &stubEmbedder{},
	})
	require.NoError(t, err)

	ctx := context.Background()
	messages := []llm.Message{{Role: "user", Content: "I moved to Berlin"}}

	_, err = client.Add(ctx, messages)
	assert.ErrorIs(t, err, mnemo.ErrNoScope)

	_, err = client.Search(ctx, "Berlin")
	assert.ErrorIs(t, err, mnemo.ErrNoScope)
}

func TestClient_ComponentsRequired(t *testing.T) {
	_, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		LLM:      newStubProvider(),
		Embedder: &stubEmbedder{},
	})
	assert.ErrorIs(t, err, mnemo.ErrInvalidConfig)
}

func TestClient_SimpleAddGetHistory(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_simple.db")
	defer cleanup()
	hist, histCleanup := newHistoryStore(t, "./test_mnemo_client_simple_history.db")
	defer histCleanup()

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      newStubProvider(),
		Embedder: &stubEmbedder{},
		History:  hist,
	})
	require.NoError(t, err)

	ctx := context.Background()
	messages := []llm.Message{{Role: "user", Content: "I moved to Berlin"}}

	result, err := client.Add(ctx, messages, mnemo.WithUserID("user1"), mnemo.WithInfer(false))
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "ADD", result.Results[0].Event)
	memoryID := result.Results[0].ID
	require.NotEmpty(t, memoryID)

	got, err := client.Get(ctx, memoryID, mnemo.WithUserIDForGet("user1"))
	require.NoError(t, err)
	assert.Equal(t, "user: I moved to Berlin", got.Content)
	assert.Equal(t, "user1", got.UserID)

	// Re-adding the same conversation hits the hash check and stores nothing.
	again, err := client.Add(ctx, messages, mnemo.WithUserID("user1"), mnemo.WithInfer(false))
	require.NoError(t, err)
	require.Len(t, again.Results, 1)
	assert.Equal(t, "NONE", again.Results[0].Event)
	assert.Equal(t, memoryID, again.Results[0].ID)

	entries, err := client.History(ctx, memoryID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.EventAdd, entries[0].Event)
}

func TestClient_AddSupersedesContradictedMemory(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_supersede.db")
	defer cleanup()
	hist, histCleanup := newHistoryStore(t, "./test_mnemo_client_supersede_history.db")
	defer histCleanup()

	provider := newStubProvider()
	provider.messagesResp = `{"facts": ["User doesn't like coffee"]}`
	provider.generateResp = `{"memory": [{"id": "", "text": "User doesn't like coffee", "event": "ADD"}]}`

	// The new fact embeds at cosine 0.8 to the stored memory, above the
	// update threshold, so the negation check decides the outcome.
	emb := &stubEmbedder{vectors: map[string][]float64{
		"User doesn't like coffee": {0.8, 0.6, 0},
		"User likes coffee":        {1, 0, 0},
	}}

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      provider,
		Embedder: emb,
		History:  hist,
	})
	require.NoError(t, err)

	ctx := context.Background()

	old := &storage.Memory{
		ID:                "mem-old",
		UserID:            "user1",
		Hash:              storage.ContentHash("User likes coffee"),
		Content:           "User likes coffee",
		Embedding:         []float64{1, 0, 0},
		RetentionStrength: 1.0,
	}
	require.NoError(t, store.Insert(ctx, old))

	result, err := client.Add(ctx,
		[]llm.Message{{Role: "user", Content: "I don't like coffee anymore"}},
		mnemo.WithUserID("user1"))
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "ADD", result.Results[0].Event)
	newID := result.Results[0].ID
	require.NotEmpty(t, newID)

	sups, err := client.Supersessions(ctx, "mem-old")
	require.NoError(t, err)
	require.Len(t, sups, 1)
	assert.Equal(t, newID, sups[0].NewMemoryID)
	assert.Equal(t, "mem-old", sups[0].OldMemoryID)
	assert.Equal(t, string(intelligence.ContradictionNegation), sups[0].Reason)
	assert.InDelta(t, 0.8, sups[0].Confidence, 0.01)

	// The displaced memory decays out instead of being deleted.
	displaced, err := client.Get(ctx, "mem-old", mnemo.WithUserIDForGet("user1"))
	require.NoError(t, err)
	assert.Less(t, displaced.RetentionStrength, 1.0)

	none, err := client.Supersessions(ctx, "mem-unrelated")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClient_AddInvalidatesCacheOnVectorFailure(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_invalidate.db")
	defer cleanup()
	layer, layerCleanup := newCacheLayer(t)
	defer layerCleanup()

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      newStubProvider(),
		Embedder: &stubEmbedder{err: errors.New("provider down")},
		Cache:    layer,
	})
	require.NoError(t, err)

	ctx := context.Background()

	layer.SetSearch(ctx, "user1", "vector", "query", nil, []string{"stale result"})
	var seeded []string
	require.True(t, layer.GetSearch(ctx, "user1", "vector", "query", nil, &seeded))

	_, err = client.Add(ctx,
		[]llm.Message{{Role: "user", Content: "I moved to Berlin"}},
		mnemo.WithUserID("user1"), mnemo.WithInfer(false))
	assert.Error(t, err)

	// Cached snapshots for the user are dropped even though the write failed.
	var stale []string
	assert.False(t, layer.GetSearch(ctx, "user1", "vector", "query", nil, &stale))
}

func TestClient_AddReturnsGraphRelations(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_graphadd.db")
	defer cleanup()

	graphDBPath := "./test_mnemo_client_graphadd_graph.db"
	_ = os.Remove(graphDBPath)
	defer os.Remove(graphDBPath)

	provider := newStubProvider()
	provider.toolResponses["extract_entities"] = &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: "extract_entities",
		Arguments: map[string]interface{}{"entities": []interface{}{
			map[string]interface{}{"entity": "Alice", "entity_type": "person"},
			map[string]interface{}{"entity": "Acme Corp", "entity_type": "organization"},
		}},
	}}}
	provider.toolResponses["establish_relationships"] = &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: "establish_relationships",
		Arguments: map[string]interface{}{"entities": []interface{}{
			map[string]interface{}{"source": "Alice", "relationship": "works at", "destination": "Acme Corp"},
		}},
	}}}

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice":     {1, 0, 0},
		"acme_corp": {0, 1, 0},
	}}

	graphStore, err := sqlitegraph.NewStore(&sqlitegraph.Config{DBPath: graphDBPath})
	require.NoError(t, err)
	graphMem, err := graph.NewMemory(&graph.Config{LLM: provider, Embedder: emb, Store: graphStore})
	require.NoError(t, err)

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      provider,
		Embedder: emb,
		Graph:    graphMem,
	})
	require.NoError(t, err)

	result, err := client.Add(context.Background(),
		[]llm.Message{{Role: "user", Content: "Alice works at Acme Corp"}},
		mnemo.WithUserID("user1"), mnemo.WithInfer(false))
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, "ADD", result.Results[0].Event)
	require.Len(t, result.Relations, 1)
	assert.Equal(t, "alice", result.Relations[0].Source)
	assert.Equal(t, "works_at", result.Relations[0].Relationship)
	assert.Equal(t, "acme_corp", result.Relations[0].Destination)
}

func TestClient_SearchCachesGraphRelations(t *testing.T) {
	store, cleanup := newVectorStore(t, "./test_mnemo_client_graphsearch.db")
	defer cleanup()
	layer, layerCleanup := newCacheLayer(t)
	defer layerCleanup()

	graphDBPath := "./test_mnemo_client_graphsearch_graph.db"
	_ = os.Remove(graphDBPath)
	defer os.Remove(graphDBPath)

	provider := newStubProvider()
	provider.toolResponses["extract_entities"] = &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: "extract_entities",
		Arguments: map[string]interface{}{"entities": []interface{}{
			map[string]interface{}{"entity": "Alice", "entity_type": "person"},
		}},
	}}}

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice": {1, 0, 0},
	}}

	graphStore, err := sqlitegraph.NewStore(&sqlitegraph.Config{DBPath: graphDBPath})
	require.NoError(t, err)
	graphMem, err := graph.NewMemory(&graph.Config{LLM: provider, Embedder: emb, Store: graphStore})
	require.NoError(t, err)

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}
	require.NoError(t, graphStore.MergeRelation(ctx, scope,
		&graph.Relation{Source: "alice", Relationship: "works_at", Destination: "acme_corp"},
		[]float64{1, 0, 0}, []float64{0, 1, 0}))

	client, err := mnemo.NewClientWithComponents(nil, mnemo.Components{
		Storage:  store,
		LLM:      provider,
		Embedder: emb,
		Graph:    graphMem,
		Cache:    layer,
	})
	require.NoError(t, err)

	first, err := client.Search(ctx, "where does alice work",
		mnemo.WithUserIDForSearch("user1"), mnemo.WithLimit(5))
	require.NoError(t, err)
	require.Len(t, first.Relations, 1)
	assert.Equal(t, "works_at", first.Relations[0].Relationship)
	assert.Equal(t, 1, provider.toolCalls["extract_entities"])

	// An identical search is served from the cache without another
	// entity-extraction call.
	second, err := client.Search(ctx, "where does alice work",
		mnemo.WithUserIDForSearch("user1"), mnemo.WithLimit(5))
	require.NoError(t, err)
	require.Len(t, second.Relations, 1)
	assert.Equal(t, "works_at", second.Relations[0].Relationship)
	assert.Equal(t, 1, provider.toolCalls["extract_entities"])
}
