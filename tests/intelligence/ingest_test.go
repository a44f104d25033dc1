package intelligence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// stubSearcher returns canned similarity results.
type stubSearcher struct {
	results []*storage.Memory
	err     error
	queries []string
}

func (s *stubSearcher) SearchSimilar(ctx context.Context, query, userID, agentID string, limit int) ([]*storage.Memory, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func TestIngestGate_CreateWhenNovel(t *testing.T) {
	searcher := &stubSearcher{}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, existingID, err := gate.Evaluate(context.Background(),
		"User started learning the violin", "user1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionCreate, decision)
	assert.Empty(t, existingID)
}

func TestIngestGate_SkipOnHighScore(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "m1", Content: "User enjoys hiking on weekends", Score: 0.97},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, _, err := gate.Evaluate(context.Background(),
		"User likes to hike on weekends", "user1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSkip, decision)
}

func TestIngestGate_SkipOnWordOverlap(t *testing.T) {
	// Low embedding score but nearly identical wording still counts as a
	// duplicate
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "m1", Content: "User drinks green tea every morning", Score: 0.5},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, _, err := gate.Evaluate(context.Background(),
		"User drinks green tea every morning", "user1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSkip, decision)
}

func TestIngestGate_UpdateOnElaboration(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "m1", Content: "User plays tennis", Score: 0.8},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, existingID, err := gate.Evaluate(context.Background(),
		"User plays tennis with a coach twice a week", "user1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionUpdate, decision)
	assert.Equal(t, "m1", existingID)
}

func TestIngestGate_SupersedeOnContradiction(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "m1", Content: "User likes coffee", Score: 0.8},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, existingID, err := gate.Evaluate(context.Background(),
		"User doesn't like coffee", "user1", "", nil)

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSupersede, decision)
	assert.Equal(t, "m1", existingID)
}

func TestIngestGate_LowBandNeedsConfidentContradiction(t *testing.T) {
	// In the 0.6-0.75 band a weak contradiction (antonym, confidence 0.7)
	// does not clear the 0.7 confidence bar
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "m1", Content: "Alice is married", Score: 0.65},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, _, err := gate.Evaluate(context.Background(),
		"Alice is single", "user1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionCreate, decision)

	// A negation contradiction (confidence 0.8) does clear it
	searcher.results = []*storage.Memory{
		{ID: "m2", Content: "User likes coffee", Score: 0.65},
	}
	decision, existingID, err := gate.Evaluate(context.Background(),
		"User doesn't like coffee", "user1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionSupersede, decision)
	assert.Equal(t, "m2", existingID)
}

func TestIngestGate_ExcludesBatchIDs(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "batch1", Content: "User enjoys hiking", Score: 0.99},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, _, err := gate.Evaluate(context.Background(),
		"User enjoys hiking", "user1", "", []string{"batch1"})

	require.NoError(t, err)
	assert.Equal(t, intelligence.DecisionCreate, decision,
		"A memory must not be judged a duplicate of its own batch")
}

func TestIngestGate_SearchFailureDegradesToCreate(t *testing.T) {
	searcher := &stubSearcher{err: errors.New("store offline")}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	decision, _, err := gate.Evaluate(context.Background(),
		"User adopted a cat", "user1", "", nil)

	require.NoError(t, err, "A failed search must not surface as an error")
	assert.Equal(t, intelligence.DecisionCreate, decision)
}

func TestIngestGate_ValidateBatch(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "old1", Content: "User enjoys hiking on weekends with friends", Score: 0.97},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	added := []*storage.Memory{
		{ID: "new1", Content: "User likes weekend hikes"},
	}
	result, err := gate.ValidateBatch(context.Background(), added, "user1", "")

	require.NoError(t, err)
	assert.Equal(t, []string{"new1"}, result.Duplicates)
	assert.Empty(t, result.Supersessions)
}

func TestIngestGate_ValidateBatchEmpty(t *testing.T) {
	gate := intelligence.NewSmartIngestGate(&stubSearcher{}, intelligence.DefaultIngestConfig())

	result, err := gate.ValidateBatch(context.Background(), nil, "user1", "")

	require.NoError(t, err)
	assert.Empty(t, result.Duplicates)
	assert.Empty(t, result.Supersessions)
}

func TestIngestGate_ValidateBatchRecordsSupersession(t *testing.T) {
	searcher := &stubSearcher{results: []*storage.Memory{
		{ID: "old1", Content: "User likes coffee", Score: 0.8},
	}}
	gate := intelligence.NewSmartIngestGate(searcher, intelligence.DefaultIngestConfig())

	added := []*storage.Memory{
		{ID: "new1", Content: "User doesn't like coffee"},
	}
	result, err := gate.ValidateBatch(context.Background(), added, "user1", "")

	require.NoError(t, err)
	assert.Empty(t, result.Duplicates)
	require.Len(t, result.Supersessions, 1)

	sup := result.Supersessions[0]
	assert.Equal(t, "new1", sup.NewMemoryID)
	assert.Equal(t, "old1", sup.OldMemoryID)
	assert.Equal(t, string(intelligence.ContradictionNegation), sup.Reason)
	assert.InDelta(t, 0.8, sup.Confidence, 0.001)
}
