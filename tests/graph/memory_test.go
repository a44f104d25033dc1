package graph_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/graph"
	"github.com/mnemo-labs/mnemo-go/pkg/graph/sqlitegraph"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// scriptedLLM answers tool-call requests with canned responses keyed by the
// offered tool's name, and records the prompts it saw per tool.
type scriptedLLM struct {
	responses map[string]*llm.Response
	prompts   map[string][]string
	calls     map[string]int
	err       error
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		responses: map[string]*llm.Response{},
		prompts:   map[string][]string{},
		calls:     map[string]int{},
	}
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return "", s.err
}

func (s *scriptedLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	return "", s.err
}

func (s *scriptedLLM) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.GenerateOption) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	name := tools[0].Name
	s.calls[name]++
	for _, m := range messages {
		s.prompts[name] = append(s.prompts[name], m.Content)
	}
	if resp, ok := s.responses[name]; ok {
		return resp, nil
	}
	return &llm.Response{}, nil
}

func (s *scriptedLLM) Close() error { return nil }

// stubEmbedder returns fixed vectors per text so node similarity is
// deterministic. Unknown texts get a vector far from every fixture.
type stubEmbedder struct {
	vectors map[string][]float64
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
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

func entitiesResponse(pairs ...string) *llm.Response {
	var entities []interface{}
	for i := 0; i+1 < len(pairs); i += 2 {
		entities = append(entities, map[string]interface{}{
			"entity":      pairs[i],
			"entity_type": pairs[i+1],
		})
	}
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		Name:      "extract_entities",
		Arguments: map[string]interface{}{"entities": entities},
	}}}
}

func relationsResponse(triples ...[3]string) *llm.Response {
	var entities []interface{}
	for _, t := range triples {
		entities = append(entities, map[string]interface{}{
			"source":       t[0],
			"relationship": t[1],
			"destination":  t[2],
		})
	}
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		Name:      "establish_relationships",
		Arguments: map[string]interface{}{"entities": entities},
	}}}
}

func deleteResponse(source, relationship, destination string) *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{
		Name: "delete_graph_memory",
		Arguments: map[string]interface{}{
			"source":       source,
			"relationship": relationship,
			"destination":  destination,
		},
	}}}
}

func setupGraphMemory(t *testing.T, provider *scriptedLLM, emb *stubEmbedder) (*graph.Memory, graph.Store, func()) {
	testDBPath := "./test_mnemo_graph_pipeline.db"
	_ = os.Remove(testDBPath)

	store, err := sqlitegraph.NewStore(&sqlitegraph.Config{DBPath: testDBPath})
	require.NoError(t, err)

	mem, err := graph.NewMemory(&graph.Config{
		LLM:      provider,
		Embedder: emb,
		Store:    store,
	})
	require.NoError(t, err)

	cleanup := func() {
		_ = mem.Close()
		_ = os.Remove(testDBPath)
	}

	return mem, store, cleanup
}

func TestGraphMemory_AddExtractsAndMerges(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = entitiesResponse(
		"Alice", "person",
		"Acme Corp", "organization",
	)
	provider.responses["establish_relationships"] = relationsResponse(
		[3]string{"Alice", "works at", "Acme Corp"},
	)

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice":     {1, 0, 0},
		"acme_corp": {0, 1, 0},
	}}

	mem, store, cleanup := setupGraphMemory(t, provider, emb)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}

	result, err := mem.Add(ctx, "Alice works at Acme Corp.", scope)
	require.NoError(t, err)

	require.Len(t, result.AddedRelations, 1)
	assert.Equal(t, "alice", result.AddedRelations[0].Source)
	assert.Equal(t, "works_at", result.AddedRelations[0].Relationship)
	assert.Equal(t, "acme_corp", result.AddedRelations[0].Destination)
	assert.Empty(t, result.DeletedRelations)

	all, err := store.GetAll(ctx, scope, 100)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "works_at", all[0].Relationship)

	// An empty graph has no neighborhood, so no deletion pass runs.
	assert.Zero(t, provider.calls["delete_graph_memory"])
}

func TestGraphMemory_AddNoEntities(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = &llm.Response{}

	mem, _, cleanup := setupGraphMemory(t, provider, &stubEmbedder{})
	defer cleanup()

	result, err := mem.Add(context.Background(), "The weather is nice.", graph.Scope{UserID: "user1"})
	require.NoError(t, err)
	assert.Empty(t, result.AddedRelations)
	assert.Empty(t, result.DeletedRelations)

	// Without entities the pipeline stops before relationship extraction.
	assert.Zero(t, provider.calls["establish_relationships"])
}

func TestGraphMemory_AddExtractionFailure(t *testing.T) {
	provider := newScriptedLLM()
	provider.err = errors.New("model unavailable")

	mem, _, cleanup := setupGraphMemory(t, provider, &stubEmbedder{})
	defer cleanup()

	_, err := mem.Add(context.Background(), "Alice works at Acme Corp.", graph.Scope{UserID: "user1"})
	assert.Error(t, err)
}

func TestGraphMemory_DeletionPassMatchesSanitizedLabel(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = entitiesResponse("Alice", "person")
	provider.responses["establish_relationships"] = relationsResponse()
	// The model re-emits the raw label even though the edge was stored
	// sanitized.
	provider.responses["delete_graph_memory"] = deleteResponse("Alice", "mother-in-law", "Carol")

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice": {1, 0, 0},
		"carol": {0, 0, 1},
	}}

	mem, store, cleanup := setupGraphMemory(t, provider, emb)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}

	err := store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "alice", Relationship: "mother_in_law", Destination: "carol"},
		[]float64{1, 0, 0}, []float64{0, 0, 1})
	require.NoError(t, err)

	result, err := mem.Add(ctx, "Carol is no longer Alice's mother-in-law.", scope)
	require.NoError(t, err)

	require.Len(t, result.DeletedRelations, 1)
	assert.Equal(t, "mother_in_law", result.DeletedRelations[0].Relationship)

	all, err := store.GetAll(ctx, scope, 100)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGraphMemory_DeletionPromptCarriesCoexistenceRule(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = entitiesResponse("Alice", "person")
	provider.responses["establish_relationships"] = relationsResponse()

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice": {1, 0, 0},
		"rex":   {0, 1, 0},
	}}

	mem, store, cleanup := setupGraphMemory(t, provider, emb)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}

	err := store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "alice", Relationship: "owns", Destination: "rex"},
		[]float64{1, 0, 0}, []float64{0, 1, 0})
	require.NoError(t, err)

	_, err = mem.Add(ctx, "Alice also adopted a cat.", scope)
	require.NoError(t, err)

	require.NotEmpty(t, provider.prompts["delete_graph_memory"])
	joined := strings.Join(provider.prompts["delete_graph_memory"], "\n")
	assert.Contains(t, joined, "DO NOT DELETE if there is a possibility of same type of relationship but different destination nodes")
}

func TestGraphMemory_MergeResolvesSimilarNodes(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = entitiesResponse("Alicia", "person")
	provider.responses["establish_relationships"] = relationsResponse(
		[3]string{"Alicia", "likes", "tea"},
	)

	// "alicia" embeds close to the existing "alice" node, "tea" far from
	// everything.
	emb := &stubEmbedder{vectors: map[string][]float64{
		"alicia": {0.99, 0.1, 0},
		"alice":  {1, 0, 0},
		"tea":    {0, 0, 1},
	}}

	mem, store, cleanup := setupGraphMemory(t, provider, emb)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}

	err := store.MergeRelation(ctx, scope,
		&graph.Relation{Source: "alice", Relationship: "works_at", Destination: "acme_corp"},
		[]float64{1, 0, 0}, []float64{0, 1, 0})
	require.NoError(t, err)

	result, err := mem.Add(ctx, "Alicia likes tea.", scope)
	require.NoError(t, err)

	require.Len(t, result.AddedRelations, 1)
	assert.Equal(t, "alice", result.AddedRelations[0].Source,
		"A near-identical entity must resolve to the existing node")
	assert.Equal(t, "tea", result.AddedRelations[0].Destination)
}

func TestGraphMemory_SearchReranksNeighborhood(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = entitiesResponse("Alice", "person")

	emb := &stubEmbedder{vectors: map[string][]float64{
		"alice": {1, 0, 0},
	}}

	mem, store, cleanup := setupGraphMemory(t, provider, emb)
	defer cleanup()

	ctx := context.Background()
	scope := graph.Scope{UserID: "user1"}

	edges := []*graph.Relation{
		{Source: "alice", Relationship: "works_at", Destination: "acme_corp"},
		{Source: "alice", Relationship: "owns", Destination: "rex"},
		{Source: "alice", Relationship: "likes", Destination: "tea"},
	}
	for i, rel := range edges {
		dest := []float64{0, float64(1 + i), 0}
		require.NoError(t, store.MergeRelation(ctx, scope, rel, []float64{1, 0, 0}, dest))
	}

	results, err := mem.Search(ctx, "where does alice works_at", scope, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "works_at", results[0].Relationship,
		"The triple sharing query tokens must rank first")
}

func TestGraphMemory_SearchNoEntities(t *testing.T) {
	provider := newScriptedLLM()
	provider.responses["extract_entities"] = &llm.Response{}

	mem, _, cleanup := setupGraphMemory(t, provider, &stubEmbedder{})
	defer cleanup()

	results, err := mem.Search(context.Background(), "anything", graph.Scope{UserID: "user1"}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
