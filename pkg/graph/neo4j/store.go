// Package neo4j provides a Neo4j implementation of the graph store.
//
// Entities are :Entity nodes carrying scope properties and an embedding;
// relationships are :CONNECTED_TO edges whose label lives in a name property,
// so arbitrary relationship text never reaches the Cypher type system.
// Similarity matching uses the server-side vector.similarity.cosine function.
package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/mnemo-labs/mnemo-go/pkg/graph"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Store implements graph.Store using Neo4j as the backend.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// Config contains configuration for creating a Neo4j graph store.
type Config struct {
	// URI is the bolt address, e.g. "neo4j://localhost:7687".
	URI string

	// Username and Password authenticate against the server.
	Username string
	Password string

	// Database selects the target database, defaults to the server default.
	Database string
}

// NewStore creates a new Neo4j graph store and verifies connectivity.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}

	return &Store{
		driver:   driver,
		database: cfg.Database,
	}, nil
}

// FindSimilarNode returns the best node in scope with similarity >= threshold.
func (s *Store) FindSimilarNode(ctx context.Context, scope graph.Scope, embedding []float64, threshold float64) (*graph.Node, error) {
	where, params := scopeConditions("n", scope)
	params["embedding"] = embedding
	params["threshold"] = threshold

	cypher := fmt.Sprintf(`
		MATCH (n:Entity)
		WHERE %s AND n.embedding IS NOT NULL
		WITH n, vector.similarity.cosine(n.embedding, $embedding) AS similarity
		WHERE similarity >= $threshold
		RETURN n.name AS name, similarity
		ORDER BY similarity DESC
		LIMIT 2
	`, where)

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("FindSimilarNode: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	name, _, err := neo4j.GetRecordValue[string](records[0], "name")
	if err != nil {
		return nil, fmt.Errorf("FindSimilarNode: %w", err)
	}
	similarity, _, err := neo4j.GetRecordValue[float64](records[0], "similarity")
	if err != nil {
		return nil, fmt.Errorf("FindSimilarNode: %w", err)
	}

	return &graph.Node{Name: name, Similarity: similarity}, nil
}

// NeighborRelations returns relations touching nodes similar to the probe,
// following both edge directions.
func (s *Store) NeighborRelations(ctx context.Context, scope graph.Scope, embedding []float64, threshold float64, limit int) ([]*graph.Relation, error) {
	where, params := scopeConditions("n", scope)
	params["embedding"] = embedding
	params["threshold"] = threshold
	params["limit"] = limit

	var relations []*graph.Relation

	for _, pattern := range []string{
		"(n)-[r:CONNECTED_TO]->(m:Entity)",
		"(m:Entity)-[r:CONNECTED_TO]->(n)",
	} {
		cypher := fmt.Sprintf(`
			MATCH (n:Entity)
			WHERE %s AND n.embedding IS NOT NULL
			WITH n, vector.similarity.cosine(n.embedding, $embedding) AS similarity
			WHERE similarity >= $threshold
			MATCH %s
			RETURN
				startNode(r).name AS source,
				r.name AS relationship,
				endNode(r).name AS destination,
				similarity
			ORDER BY similarity DESC
			LIMIT $limit
		`, where, pattern)

		records, err := s.run(ctx, cypher, params)
		if err != nil {
			return nil, fmt.Errorf("NeighborRelations: %w", err)
		}

		for _, record := range records {
			rel, err := relationFromRecord(record)
			if err != nil {
				return nil, fmt.Errorf("NeighborRelations: %w", err)
			}
			relations = append(relations, rel)
		}
	}

	if limit > 0 && len(relations) > limit {
		relations = relations[:limit]
	}

	return relations, nil
}

// MergeRelation upserts the triple, creating or reinforcing both endpoint
// nodes and the edge between them.
func (s *Store) MergeRelation(ctx context.Context, scope graph.Scope, rel *graph.Relation, sourceEmbedding, destEmbedding []float64) error {
	sourceProps, params := scopeProps(scope)
	destProps := sourceProps

	params["source_name"] = rel.Source
	params["dest_name"] = rel.Destination
	params["relationship_name"] = rel.Relationship
	params["source_embedding"] = sourceEmbedding
	params["dest_embedding"] = destEmbedding

	cypher := fmt.Sprintf(`
		MERGE (source:Entity {name: $source_name%s})
		ON CREATE SET
			source.created = timestamp(),
			source.mentions = 1,
			source.embedding = $source_embedding
		ON MATCH SET
			source.mentions = coalesce(source.mentions, 0) + 1
		MERGE (destination:Entity {name: $dest_name%s})
		ON CREATE SET
			destination.created = timestamp(),
			destination.mentions = 1,
			destination.embedding = $dest_embedding
		ON MATCH SET
			destination.mentions = coalesce(destination.mentions, 0) + 1
		MERGE (source)-[r:CONNECTED_TO {name: $relationship_name}]->(destination)
		ON CREATE SET r.created = timestamp(), r.mentions = 1
		ON MATCH SET r.mentions = coalesce(r.mentions, 0) + 1, r.updated = timestamp()
	`, sourceProps, destProps)

	if _, err := s.run(ctx, cypher, params); err != nil {
		return fmt.Errorf("MergeRelation: %w", err)
	}

	return nil
}

// DeleteRelation removes the edge matching the triple within scope.
func (s *Store) DeleteRelation(ctx context.Context, scope graph.Scope, rel *graph.Relation) error {
	props, params := scopeProps(scope)

	params["source_name"] = rel.Source
	params["dest_name"] = rel.Destination
	params["relationship_name"] = rel.Relationship

	cypher := fmt.Sprintf(`
		MATCH (source:Entity {name: $source_name%s})
		-[r:CONNECTED_TO {name: $relationship_name}]->
		(destination:Entity {name: $dest_name%s})
		DELETE r
	`, props, props)

	if _, err := s.run(ctx, cypher, params); err != nil {
		return fmt.Errorf("DeleteRelation: %w", err)
	}

	return nil
}

// GetAll returns up to limit relations in scope.
func (s *Store) GetAll(ctx context.Context, scope graph.Scope, limit int) ([]*graph.Relation, error) {
	if limit <= 0 {
		limit = 100
	}

	props, params := scopeProps(scope)
	params["limit"] = limit

	cypher := fmt.Sprintf(`
		MATCH (n:Entity {%s})-[r:CONNECTED_TO]->(m:Entity {%s})
		RETURN n.name AS source, r.name AS relationship, m.name AS destination
		LIMIT $limit
	`, strings.TrimPrefix(props, ", "), strings.TrimPrefix(props, ", "))

	records, err := s.run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}

	relations := make([]*graph.Relation, 0, len(records))
	for _, record := range records {
		rel, err := relationFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("GetAll: %w", err)
		}
		relations = append(relations, rel)
	}

	return relations, nil
}

// DeleteAll removes every node and edge in scope.
func (s *Store) DeleteAll(ctx context.Context, scope graph.Scope) error {
	where, params := scopeConditions("n", scope)

	cypher := fmt.Sprintf(`
		MATCH (n:Entity)
		WHERE %s
		DETACH DELETE n
	`, where)

	if _, err := s.run(ctx, cypher, params); err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// run executes a Cypher query and returns the eager records.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, cypher, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database))
	if err != nil {
		return nil, err
	}
	return result.Records, nil
}

// scopeConditions builds a WHERE fragment matching the scope on the given
// node variable.
func scopeConditions(nodeVar string, scope graph.Scope) (string, map[string]any) {
	conditions := []string{fmt.Sprintf("%s.user_id = $user_id", nodeVar)}
	params := map[string]any{"user_id": scope.UserID}

	if scope.AgentID != "" {
		conditions = append(conditions, fmt.Sprintf("%s.agent_id = $agent_id", nodeVar))
		params["agent_id"] = scope.AgentID
	}
	if scope.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("%s.run_id = $run_id", nodeVar))
		params["run_id"] = scope.RunID
	}

	return strings.Join(conditions, " AND "), params
}

// scopeProps builds the scope property fragment for MERGE patterns, starting
// with a leading comma so it can follow the name property.
func scopeProps(scope graph.Scope) (string, map[string]any) {
	props := ", user_id: $user_id"
	params := map[string]any{"user_id": scope.UserID}

	if scope.AgentID != "" {
		props += ", agent_id: $agent_id"
		params["agent_id"] = scope.AgentID
	}
	if scope.RunID != "" {
		props += ", run_id: $run_id"
		params["run_id"] = scope.RunID
	}

	return props, params
}

// relationFromRecord decodes a source/relationship/destination record.
func relationFromRecord(record *neo4j.Record) (*graph.Relation, error) {
	source, _, err := neo4j.GetRecordValue[string](record, "source")
	if err != nil {
		return nil, err
	}
	relationship, _, err := neo4j.GetRecordValue[string](record, "relationship")
	if err != nil {
		return nil, err
	}
	destination, _, err := neo4j.GetRecordValue[string](record, "destination")
	if err != nil {
		return nil, err
	}

	return &graph.Relation{
		Source:       source,
		Relationship: relationship,
		Destination:  destination,
	}, nil
}
