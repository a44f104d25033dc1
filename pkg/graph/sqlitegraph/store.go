// Package sqlitegraph provides an embedded SQLite implementation of the graph store.
//
// Nodes and edges live in two relational tables; node embeddings are stored
// as JSON and similarity is computed in memory, mirroring how the SQLite
// vector store works. Suitable for local development and tests where no
// graph server is available.
package sqlitegraph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mnemo-labs/mnemo-go/pkg/graph"
)

// Store implements graph.Store using SQLite as the backend.
type Store struct {
	db *sql.DB
}

// Config contains configuration for creating a SQLite graph store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewStore creates a new SQLite graph store.
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewGraphStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewGraphStore: %w", err)
	}

	store := &Store{db: db}

	if err := store.initTables(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

// initTables initializes the node and edge tables.
func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			run_id TEXT,
			name TEXT NOT NULL,
			mentions INTEGER DEFAULT 1,
			embedding TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS graph_edges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id INTEGER NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
			dest_id INTEGER NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			mentions INTEGER DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_scope ON graph_nodes(user_id, agent_id, run_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_dest ON graph_edges(dest_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}

	return nil
}

// scopedNode is an in-memory node candidate with its similarity to a probe.
type scopedNode struct {
	id         int64
	name       string
	similarity float64
}

// FindSimilarNode returns the best node in scope with similarity >= threshold.
func (s *Store) FindSimilarNode(ctx context.Context, scope graph.Scope, embedding []float64, threshold float64) (*graph.Node, error) {
	candidates, err := s.similarNodes(ctx, scope, embedding, threshold)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	best := candidates[0]
	return &graph.Node{Name: best.name, Similarity: best.similarity}, nil
}

// NeighborRelations returns relations touching nodes similar to the probe,
// following both edge directions.
func (s *Store) NeighborRelations(ctx context.Context, scope graph.Scope, embedding []float64, threshold float64, limit int) ([]*graph.Relation, error) {
	candidates, err := s.similarNodes(ctx, scope, embedding, threshold)
	if err != nil {
		return nil, err
	}

	var relations []*graph.Relation
	for _, node := range candidates {
		if limit > 0 && len(relations) >= limit {
			break
		}

		query := `
			SELECT src.name, e.name, dst.name
			FROM graph_edges e
			JOIN graph_nodes src ON src.id = e.source_id
			JOIN graph_nodes dst ON dst.id = e.dest_id
			WHERE e.source_id = ? OR e.dest_id = ?
		`

		rows, err := s.db.QueryContext(ctx, query, node.id, node.id)
		if err != nil {
			return nil, fmt.Errorf("NeighborRelations: %w", err)
		}

		for rows.Next() {
			var rel graph.Relation
			if err := rows.Scan(&rel.Source, &rel.Relationship, &rel.Destination); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("NeighborRelations: %w", err)
			}
			relations = append(relations, &rel)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}

	if limit > 0 && len(relations) > limit {
		relations = relations[:limit]
	}

	return relations, nil
}

// MergeRelation upserts the triple, creating or reinforcing both endpoint
// nodes and the edge between them.
func (s *Store) MergeRelation(ctx context.Context, scope graph.Scope, rel *graph.Relation, sourceEmbedding, destEmbedding []float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MergeRelation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sourceID, err := s.mergeNode(ctx, tx, scope, rel.Source, sourceEmbedding)
	if err != nil {
		return fmt.Errorf("MergeRelation: %w", err)
	}

	destID, err := s.mergeNode(ctx, tx, scope, rel.Destination, destEmbedding)
	if err != nil {
		return fmt.Errorf("MergeRelation: %w", err)
	}

	var edgeID int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM graph_edges WHERE source_id = ? AND dest_id = ? AND name = ?",
		sourceID, destID, rel.Relationship,
	).Scan(&edgeID)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO graph_edges (source_id, dest_id, name, mentions) VALUES (?, ?, ?, 1)",
			sourceID, destID, rel.Relationship)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE graph_edges SET mentions = mentions + 1, updated_at = ? WHERE id = ?",
			time.Now(), edgeID)
	}
	if err != nil {
		return fmt.Errorf("MergeRelation: %w", err)
	}

	return tx.Commit()
}

// mergeNode creates the node or increments its mention count, returning its id.
func (s *Store) mergeNode(ctx context.Context, tx *sql.Tx, scope graph.Scope, name string, embedding []float64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM graph_nodes WHERE user_id = ? AND agent_id = ? AND run_id = ? AND name = ?",
		scope.UserID, scope.AgentID, scope.RunID, name,
	).Scan(&id)

	if err == nil {
		_, err = tx.ExecContext(ctx, "UPDATE graph_nodes SET mentions = mentions + 1 WHERE id = ?", id)
		return id, err
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO graph_nodes (user_id, agent_id, run_id, name, mentions, embedding) VALUES (?, ?, ?, ?, 1, ?)",
		scope.UserID, scope.AgentID, scope.RunID, name, string(embeddingJSON))
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// DeleteRelation removes the edge matching the triple within scope.
func (s *Store) DeleteRelation(ctx context.Context, scope graph.Scope, rel *graph.Relation) error {
	query := `
		DELETE FROM graph_edges
		WHERE name = ?
		  AND source_id IN (SELECT id FROM graph_nodes WHERE user_id = ? AND agent_id = ? AND run_id = ? AND name = ?)
		  AND dest_id IN (SELECT id FROM graph_nodes WHERE user_id = ? AND agent_id = ? AND run_id = ? AND name = ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rel.Relationship,
		scope.UserID, scope.AgentID, scope.RunID, rel.Source,
		scope.UserID, scope.AgentID, scope.RunID, rel.Destination,
	)
	if err != nil {
		return fmt.Errorf("DeleteRelation: %w", err)
	}

	return nil
}

// GetAll returns up to limit relations in scope.
func (s *Store) GetAll(ctx context.Context, scope graph.Scope, limit int) ([]*graph.Relation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT src.name, e.name, dst.name
		FROM graph_edges e
		JOIN graph_nodes src ON src.id = e.source_id
		JOIN graph_nodes dst ON dst.id = e.dest_id
		WHERE src.user_id = ? AND src.agent_id = ? AND src.run_id = ?
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, scope.UserID, scope.AgentID, scope.RunID, limit)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var relations []*graph.Relation
	for rows.Next() {
		var rel graph.Relation
		if err := rows.Scan(&rel.Source, &rel.Relationship, &rel.Destination); err != nil {
			return nil, fmt.Errorf("GetAll: %w", err)
		}
		relations = append(relations, &rel)
	}

	return relations, rows.Err()
}

// DeleteAll removes every node and edge in scope. Edges go with their nodes
// through the foreign key cascade.
func (s *Store) DeleteAll(ctx context.Context, scope graph.Scope) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM graph_nodes WHERE user_id = ? AND agent_id = ? AND run_id = ?",
		scope.UserID, scope.AgentID, scope.RunID)
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// similarNodes loads every embedded node in scope and ranks it against the
// probe, keeping those at or above the threshold.
func (s *Store) similarNodes(ctx context.Context, scope graph.Scope, embedding []float64, threshold float64) ([]scopedNode, error) {
	query := `
		SELECT id, name, embedding
		FROM graph_nodes
		WHERE user_id = ? AND agent_id = ? AND run_id = ? AND embedding IS NOT NULL
	`

	rows, err := s.db.QueryContext(ctx, query, scope.UserID, scope.AgentID, scope.RunID)
	if err != nil {
		return nil, fmt.Errorf("similarNodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []scopedNode
	for rows.Next() {
		var node scopedNode
		var embeddingStr string
		if err := rows.Scan(&node.id, &node.name, &embeddingStr); err != nil {
			return nil, fmt.Errorf("similarNodes: %w", err)
		}

		var nodeEmbedding []float64
		if err := json.Unmarshal([]byte(embeddingStr), &nodeEmbedding); err != nil {
			continue
		}

		node.similarity = cosineSimilarity(embedding, nodeEmbedding)
		if node.similarity >= threshold {
			candidates = append(candidates, node)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].similarity > candidates[j].similarity
	})

	return candidates, nil
}

// cosineSimilarity calculates the cosine similarity between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
