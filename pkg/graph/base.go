// Package graph provides entity and relationship memory on top of a graph store.
//
// Text is decomposed by the LLM into entities and relationship triples, which
// are merged into a per-user knowledge graph. Node identity is resolved by
// embedding similarity rather than exact name match, so "my_dog" and "my dog"
// land on the same node. Search re-extracts entities from the query, walks
// their neighborhoods, and reranks the resulting triples with BM25.
package graph

import "context"

// DefaultThreshold is the minimum cosine similarity for two entity names to
// be treated as the same node.
const DefaultThreshold = 0.7

// Scope identifies the owner of a graph partition. UserID is required;
// AgentID and RunID narrow the partition further when set.
type Scope struct {
	UserID  string
	AgentID string
	RunID   string
}

// Identity renders the scope the way prompts reference it.
func (s Scope) Identity() string {
	identity := "user_id: " + s.UserID
	if s.AgentID != "" {
		identity += ", agent_id: " + s.AgentID
	}
	if s.RunID != "" {
		identity += ", run_id: " + s.RunID
	}
	return identity
}

// Node is a graph entity matched by similarity search.
type Node struct {
	// Name is the normalized entity name.
	Name string

	// Similarity is the cosine similarity to the probe embedding.
	Similarity float64
}

// Relation is a single triple in the graph.
type Relation struct {
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Destination  string `json:"destination"`
}

// Store defines the interface for graph storage backends.
//
// Backends handle node and edge persistence; entity extraction and merge
// decisions live in Memory.
type Store interface {
	// FindSimilarNode returns the best node in scope whose embedding has
	// cosine similarity >= threshold to the probe, or nil if none qualifies.
	FindSimilarNode(ctx context.Context, scope Scope, embedding []float64, threshold float64) (*Node, error)

	// NeighborRelations returns relations touching nodes in scope whose
	// embedding similarity to the probe is >= threshold. Both edge
	// directions are followed. Results are ordered by node similarity.
	NeighborRelations(ctx context.Context, scope Scope, embedding []float64, threshold float64, limit int) ([]*Relation, error)

	// MergeRelation upserts the triple. Endpoint nodes are merged by
	// (name, scope): created with the given embedding and mentions=1, or
	// matched with mentions incremented. The edge is merged the same way.
	MergeRelation(ctx context.Context, scope Scope, rel *Relation, sourceEmbedding, destEmbedding []float64) error

	// DeleteRelation removes the edge matching the triple within scope.
	// Endpoint nodes are kept.
	DeleteRelation(ctx context.Context, scope Scope, rel *Relation) error

	// GetAll returns up to limit relations in scope.
	GetAll(ctx context.Context, scope Scope, limit int) ([]*Relation, error)

	// DeleteAll removes every node and edge in scope.
	DeleteAll(ctx context.Context, scope Scope) error

	// Close closes the store and releases resources.
	Close() error
}
