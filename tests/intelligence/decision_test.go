package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// stubLLM returns a canned response for every call.
type stubLLM struct {
	response string
	err      error
	prompts  []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func (s *stubLLM) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	for _, m := range messages {
		s.prompts = append(s.prompts, m.Content)
	}
	return s.response, s.err
}

func (s *stubLLM) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.Tool, opts ...llm.GenerateOption) (*llm.Response, error) {
	return &llm.Response{Content: s.response}, s.err
}

func (s *stubLLM) Close() error { return nil }

func TestIDMap(t *testing.T) {
	memories := []*storage.Memory{
		{ID: "aaaa-1111", Content: "first"},
		{ID: "bbbb-2222", Content: "second"},
	}

	idMap := intelligence.NewIDMap(memories)
	assert.Equal(t, 2, idMap.Len())

	real, ok := idMap.Resolve("0")
	require.True(t, ok)
	assert.Equal(t, "aaaa-1111", real)

	real, ok = idMap.Resolve("1")
	require.True(t, ok)
	assert.Equal(t, "bbbb-2222", real)

	temp, ok := idMap.TempID("bbbb-2222")
	require.True(t, ok)
	assert.Equal(t, "1", temp)

	// Hallucinated identifiers resolve to nothing
	_, ok = idMap.Resolve("99")
	assert.False(t, ok)
	_, ok = idMap.Resolve("aaaa-1111")
	assert.False(t, ok, "Real IDs are not temporary identifiers")
}

func TestDecide(t *testing.T) {
	provider := &stubLLM{response: `{"memory": [
		{"id": "", "text": "User likes hiking", "event": "ADD"},
		{"id": "0", "text": "User lives in Berlin", "event": "UPDATE", "old_memory": "User lives in Hamburg"},
		{"id": "1", "text": "", "event": "DELETE"}
	]}`}
	maker := intelligence.NewDecisionMaker(provider)

	existing := []*storage.Memory{
		{ID: "mem-a", Content: "User lives in Hamburg"},
		{ID: "mem-b", Content: "User is moving soon"},
	}
	facts := []string{"Likes hiking", "Lives in Berlin"}

	actions, idMap, err := maker.Decide(context.Background(), facts, existing)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, "ADD", actions[0].Event)
	assert.Equal(t, "User likes hiking", actions[0].Content())

	assert.Equal(t, "UPDATE", actions[1].Event)
	real, ok := idMap.Resolve(actions[1].ID)
	require.True(t, ok)
	assert.Equal(t, "mem-a", real)

	assert.Equal(t, "DELETE", actions[2].Event)
	real, ok = idMap.Resolve(actions[2].ID)
	require.True(t, ok)
	assert.Equal(t, "mem-b", real)

	// The prompt shows temporary identifiers, never the real UUIDs
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "ID: 0, Content: User lives in Hamburg")
	assert.NotContains(t, provider.prompts[0], "mem-a")
}

func TestDecide_EmptyFacts(t *testing.T) {
	provider := &stubLLM{}
	maker := intelligence.NewDecisionMaker(provider)

	actions, idMap, err := maker.Decide(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.NotNil(t, idMap)
	assert.Empty(t, provider.prompts, "No LLM call is made without facts")
}

func TestDecide_CodeFencedResponse(t *testing.T) {
	provider := &stubLLM{response: "```json\n{\"memory\": [{\"id\": \"\", \"text\": \"Likes tea\", \"event\": \"add\"}]}\n```"}
	maker := intelligence.NewDecisionMaker(provider)

	actions, _, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "ADD", actions[0].Event, "Event names are normalized to upper case")
}

func TestDecide_MemoryFieldFallback(t *testing.T) {
	provider := &stubLLM{response: `{"memory": [{"id": "", "memory": "Plays chess", "event": "ADD"}]}`}
	maker := intelligence.NewDecisionMaker(provider)

	actions, _, err := maker.Decide(context.Background(), []string{"Plays chess"}, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "Plays chess", actions[0].Content())
}

func TestDecide_UnknownEventsDropped(t *testing.T) {
	provider := &stubLLM{response: `{"memory": [
		{"id": "", "text": "Likes tea", "event": "ADD"},
		{"id": "", "text": "???", "event": "MERGE"}
	]}`}
	maker := intelligence.NewDecisionMaker(provider)

	actions, _, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "ADD", actions[0].Event)
}

func TestDecide_EmbeddedJSONFallback(t *testing.T) {
	provider := &stubLLM{response: `Here is the JSON you asked for: {"memory": [{"id": "", "text": "Likes tea", "event": "ADD"}]} Hope that helps!`}
	maker := intelligence.NewDecisionMaker(provider)

	actions, _, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "ADD", actions[0].Event)
	assert.Equal(t, "Likes tea", actions[0].Text)
}

func TestDecide_InvalidJSON(t *testing.T) {
	provider := &stubLLM{response: "I cannot help with that."}
	maker := intelligence.NewDecisionMaker(provider)

	_, _, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	assert.Error(t, err)
}

func TestDecide_LLMFailure(t *testing.T) {
	provider := &stubLLM{err: errors.New("rate limited")}
	maker := intelligence.NewDecisionMaker(provider)

	_, _, err := maker.Decide(context.Background(), []string{"Likes tea"}, nil)
	assert.Error(t, err)
}

func TestFactExtractor(t *testing.T) {
	provider := &stubLLM{response: `{"facts": ["Name is Alice", "Works as a designer"]}`}
	extractor := intelligence.NewFactExtractor(provider, "")

	facts, err := extractor.Extract(context.Background(), []llm.Message{
		{Role: "user", Content: "Hi, I'm Alice and I work as a designer."},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Name is Alice", "Works as a designer"}, facts)
}

func TestFactExtractor_EmptyMessages(t *testing.T) {
	provider := &stubLLM{}
	extractor := intelligence.NewFactExtractor(provider, "")

	facts, err := extractor.Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, facts)
	assert.Empty(t, provider.prompts, "No LLM call is made without messages")
}

func TestFactExtractor_EmbeddedJSONFallback(t *testing.T) {
	provider := &stubLLM{response: `Sure! {"facts": ["Lives in Tokyo"]}`}
	extractor := intelligence.NewFactExtractor(provider, "")

	facts, err := extractor.ExtractFromText(context.Background(), "I live in Tokyo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lives in Tokyo"}, facts)
}

func TestFactExtractor_FromText(t *testing.T) {
	provider := &stubLLM{response: "```json\n{\"facts\": [\"Lives in Tokyo\"]}\n```"}
	extractor := intelligence.NewFactExtractor(provider, "")

	facts, err := extractor.ExtractFromText(context.Background(), "I live in Tokyo")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lives in Tokyo"}, facts)
}
