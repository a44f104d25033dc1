package graph

import (
	"context"
	"fmt"
	"log"

	"github.com/mnemo-labs/mnemo-go/pkg/embedder"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
)

// neighborFetchLimit caps how many relations a neighborhood fetch returns
// per extracted entity.
const neighborFetchLimit = 100

// Memory is the graph memory pipeline.
//
// Add runs entity extraction, relationship extraction, a similarity-gated
// merge into the store, and an LLM deletion pass over stale relations.
// Search re-extracts entities from the query and reranks their neighborhood
// with BM25; it makes no deletion or merge decisions.
type Memory struct {
	llm       llm.Provider
	embedder  embedder.Provider
	store     Store
	threshold float64

	// customPrompt is appended to the relationship extraction guidelines
	// when set.
	customPrompt string
}

// Config contains configuration for creating a graph Memory.
type Config struct {
	// LLM drives entity extraction and the deletion pass.
	LLM llm.Provider

	// Embedder produces node embeddings for similarity matching.
	Embedder embedder.Provider

	// Store is the graph storage backend.
	Store Store

	// Threshold is the minimum cosine similarity for node identity,
	// defaults to DefaultThreshold.
	Threshold float64

	// CustomPrompt adds a domain-specific guideline to relationship extraction.
	CustomPrompt string
}

// AddResult reports what a graph Add changed.
type AddResult struct {
	AddedRelations   []*Relation `json:"added_relations"`
	DeletedRelations []*Relation `json:"deleted_relations"`
}

// NewMemory creates a graph memory pipeline.
func NewMemory(cfg *Config) (*Memory, error) {
	if cfg.LLM == nil {
		return nil, fmt.Errorf("graph: LLM provider is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("graph: embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("graph: store is required")
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	return &Memory{
		llm:          cfg.LLM,
		embedder:     cfg.Embedder,
		store:        cfg.Store,
		threshold:    threshold,
		customPrompt: cfg.CustomPrompt,
	}, nil
}

// Add extracts entities and relationships from data and merges them into the
// graph, deleting relations the new information contradicts.
//
// The two extraction calls are sequential: relationship extraction needs the
// entity list from the first call.
func (m *Memory) Add(ctx context.Context, data string, scope Scope) (*AddResult, error) {
	entityTypeMap, err := m.extractEntities(ctx, data, scope)
	if err != nil {
		return nil, err
	}
	if len(entityTypeMap) == 0 {
		return &AddResult{}, nil
	}

	toBeAdded, err := m.extractRelations(ctx, data, scope, entityTypeMap)
	if err != nil {
		return nil, err
	}

	neighbors := m.neighborhood(ctx, scope, entityKeys(entityTypeMap), neighborFetchLimit)

	toBeDeleted := m.deletionPass(ctx, neighbors, data, scope)

	result := &AddResult{}

	for _, rel := range toBeDeleted {
		if err := m.store.DeleteRelation(ctx, scope, rel); err != nil {
			log.Printf("graph: delete relation %s--%s--%s failed: %v", rel.Source, rel.Relationship, rel.Destination, err)
			continue
		}
		result.DeletedRelations = append(result.DeletedRelations, rel)
	}

	for _, rel := range toBeAdded {
		added, err := m.mergeRelation(ctx, scope, rel)
		if err != nil {
			log.Printf("graph: merge relation %s--%s--%s failed: %v", rel.Source, rel.Relationship, rel.Destination, err)
			continue
		}
		result.AddedRelations = append(result.AddedRelations, added)
	}

	log.Printf("graph: added %d relations, deleted %d relations", len(result.AddedRelations), len(result.DeletedRelations))
	return result, nil
}

// Search returns relations relevant to the query.
//
// Entities are extracted from the query text, their neighborhoods fetched by
// embedding similarity, and the collected triples reranked with BM25 against
// the query tokens. No LLM call is made beyond the extraction.
func (m *Memory) Search(ctx context.Context, query string, scope Scope, limit int) ([]*Relation, error) {
	entityTypeMap, err := m.extractEntities(ctx, query, scope)
	if err != nil {
		return nil, err
	}
	if len(entityTypeMap) == 0 {
		return nil, nil
	}

	neighbors := m.neighborhood(ctx, scope, entityKeys(entityTypeMap), neighborFetchLimit)
	if len(neighbors) == 0 {
		return nil, nil
	}

	corpus := make([][]string, len(neighbors))
	for i, rel := range neighbors {
		corpus[i] = []string{rel.Source, rel.Relationship, rel.Destination}
	}

	ranker := newBM25(corpus)
	var results []*Relation
	for _, idx := range ranker.topN(tokenize(query), limit) {
		results = append(results, neighbors[idx])
	}

	log.Printf("graph: returned %d search results", len(results))
	return results, nil
}

// GetAll returns up to limit relations in scope.
func (m *Memory) GetAll(ctx context.Context, scope Scope, limit int) ([]*Relation, error) {
	return m.store.GetAll(ctx, scope, limit)
}

// DeleteAll removes every node and edge in scope.
func (m *Memory) DeleteAll(ctx context.Context, scope Scope) error {
	return m.store.DeleteAll(ctx, scope)
}

// Close closes the underlying store. The LLM and embedder are shared and
// closed by their owner.
func (m *Memory) Close() error {
	return m.store.Close()
}

// extractEntities asks the LLM for the entities in data, returning a map of
// normalized entity name to normalized entity type.
func (m *Memory) extractEntities(ctx context.Context, data string, scope Scope) (map[string]string, error) {
	resp, err := m.llm.GenerateWithTools(ctx, []llm.Message{
		{Role: "system", Content: extractEntitiesSystemPrompt(scope.Identity())},
		{Role: "user", Content: data},
	}, []llm.Tool{extractEntitiesTool})
	if err != nil {
		return nil, fmt.Errorf("graph: entity extraction: %w", err)
	}

	entityTypeMap := make(map[string]string)
	for _, call := range resp.ToolCalls {
		if call.Name != "extract_entities" {
			continue
		}
		for _, item := range decodeList(call.Arguments, "entities") {
			entity, _ := item["entity"].(string)
			entityType, _ := item["entity_type"].(string)
			if entity == "" {
				continue
			}
			entityTypeMap[normalizeEntity(entity)] = normalizeEntity(entityType)
		}
	}

	return entityTypeMap, nil
}

// extractRelations asks the LLM to connect the extracted entities into triples.
func (m *Memory) extractRelations(ctx context.Context, data string, scope Scope, entityTypeMap map[string]string) ([]*Relation, error) {
	userContent := fmt.Sprintf("List of entities: %v. \n\nText: %s", entityKeys(entityTypeMap), data)

	resp, err := m.llm.GenerateWithTools(ctx, []llm.Message{
		{Role: "system", Content: buildRelationsPrompt(scope.Identity(), m.customPrompt)},
		{Role: "user", Content: userContent},
	}, []llm.Tool{establishRelationshipsTool})
	if err != nil {
		return nil, fmt.Errorf("graph: relationship extraction: %w", err)
	}

	var relations []*Relation
	for _, call := range resp.ToolCalls {
		if call.Name != "establish_relationships" {
			continue
		}
		for _, item := range decodeList(call.Arguments, "entities") {
			rel := relationFromMap(item)
			if rel != nil {
				relations = append(relations, rel)
			}
		}
	}

	return normalizeRelations(relations), nil
}

// neighborhood fetches relations around every listed entity. Failures for a
// single entity are logged and skipped so one bad embedding does not empty
// the result.
func (m *Memory) neighborhood(ctx context.Context, scope Scope, entities []string, limit int) []*Relation {
	var relations []*Relation
	seen := make(map[Relation]struct{})

	for _, entity := range entities {
		embedding, err := m.embedder.Embed(ctx, entity)
		if err != nil {
			log.Printf("graph: embed entity %q failed: %v", entity, err)
			continue
		}

		neighbors, err := m.store.NeighborRelations(ctx, scope, embedding, m.threshold, limit)
		if err != nil {
			log.Printf("graph: neighbor fetch for %q failed: %v", entity, err)
			continue
		}

		for _, rel := range neighbors {
			if _, ok := seen[*rel]; ok {
				continue
			}
			seen[*rel] = struct{}{}
			relations = append(relations, rel)
		}
	}

	return relations
}

// deletionPass asks the LLM which existing relations the new data
// contradicts. An LLM failure here degrades to deleting nothing.
func (m *Memory) deletionPass(ctx context.Context, existing []*Relation, data string, scope Scope) []*Relation {
	if len(existing) == 0 {
		return nil
	}

	systemPrompt, userPrompt := buildDeleteMessages(formatRelations(existing), data, scope.Identity())

	resp, err := m.llm.GenerateWithTools(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}, []llm.Tool{deleteGraphMemoryTool})
	if err != nil {
		log.Printf("graph: deletion pass failed: %v", err)
		return nil
	}

	var toBeDeleted []*Relation
	for _, call := range resp.ToolCalls {
		if call.Name != "delete_graph_memory" {
			continue
		}
		rel := relationFromMap(call.Arguments)
		if rel != nil {
			toBeDeleted = append(toBeDeleted, rel)
		}
	}

	toBeDeleted = normalizeRelations(toBeDeleted)
	// Stored edges carry sanitized labels; a raw label from the model
	// would otherwise never match an edge to delete.
	for _, rel := range toBeDeleted {
		rel.Relationship = SanitizeRelationship(rel.Relationship)
	}
	return toBeDeleted
}

// mergeRelation resolves both endpoints against existing nodes by embedding
// similarity, then upserts the triple under the resolved names.
func (m *Memory) mergeRelation(ctx context.Context, scope Scope, rel *Relation) (*Relation, error) {
	sourceEmbedding, err := m.embedder.Embed(ctx, rel.Source)
	if err != nil {
		return nil, fmt.Errorf("embed source: %w", err)
	}
	destEmbedding, err := m.embedder.Embed(ctx, rel.Destination)
	if err != nil {
		return nil, fmt.Errorf("embed destination: %w", err)
	}

	resolved := &Relation{
		Source:       rel.Source,
		Relationship: SanitizeRelationship(rel.Relationship),
		Destination:  rel.Destination,
	}

	if node, err := m.store.FindSimilarNode(ctx, scope, sourceEmbedding, m.threshold); err == nil && node != nil {
		resolved.Source = node.Name
	}
	if node, err := m.store.FindSimilarNode(ctx, scope, destEmbedding, m.threshold); err == nil && node != nil {
		resolved.Destination = node.Name
	}

	if err := m.store.MergeRelation(ctx, scope, resolved, sourceEmbedding, destEmbedding); err != nil {
		return nil, err
	}

	return resolved, nil
}

// entityKeys returns the entity names of the map in arbitrary order.
func entityKeys(entityTypeMap map[string]string) []string {
	keys := make([]string, 0, len(entityTypeMap))
	for k := range entityTypeMap {
		keys = append(keys, k)
	}
	return keys
}

// decodeList pulls a list of objects out of decoded tool call arguments.
func decodeList(arguments map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := arguments[key].([]interface{})
	if !ok {
		return nil
	}

	var items []map[string]interface{}
	for _, entry := range raw {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items
}

// relationFromMap builds a Relation from decoded tool call arguments,
// returning nil when any field is missing.
func relationFromMap(item map[string]interface{}) *Relation {
	source, _ := item["source"].(string)
	relationship, _ := item["relationship"].(string)
	destination, _ := item["destination"].(string)

	if source == "" || relationship == "" || destination == "" {
		return nil
	}

	return &Relation{
		Source:       source,
		Relationship: relationship,
		Destination:  destination,
	}
}
