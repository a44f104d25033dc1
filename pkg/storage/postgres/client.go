// Package postgres provides a PostgreSQL + pgvector implementation for vector storage.
//
// Similarity search runs server side using pgvector's cosine distance operator,
// so results never require a full table scan in application memory.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Client is a PostgreSQL + pgvector client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}

	// Initialize pgvector extension and table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	// Enable pgvector extension
	_, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("initTables: create extension: %w", err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL,
			agent_id VARCHAR(255),
			run_id VARCHAR(255),
			actor_id VARCHAR(255),
			role VARCHAR(32),
			is_key BOOLEAN DEFAULT FALSE,
			hash VARCHAR(64),
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			retention_strength FLOAT DEFAULT 1.0
		)
	`, c.collectionName, c.dimensions)

	_, err = c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	for _, indexQuery := range []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_user_agent ON %s(user_id, agent_id)", c.collectionName, c.collectionName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_hash ON %s(user_id, hash)", c.collectionName, c.collectionName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)", c.collectionName, c.collectionName),
	} {
		if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
			return fmt.Errorf("initTables: create index: %w", err)
		}
	}

	return nil
}

// Insert inserts a memory.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, agent_id, run_id, actor_id, role, is_key, hash, content, embedding, metadata, created_at, updated_at, retention_strength)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, c.collectionName)

	// Convert vector to PostgreSQL vector format: "[0.1,0.2,0.3,...]"
	vectorStr := vectorToString(memory.Embedding)

	metadataJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	now := time.Now()
	createdAt := memory.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = c.db.ExecContext(ctx, query,
		memory.ID,
		memory.UserID,
		memory.AgentID,
		memory.RunID,
		memory.ActorID,
		memory.Role,
		memory.IsKey,
		memory.Hash,
		memory.Content,
		vectorStr,
		string(metadataJSON),
		createdAt,
		now,
		memory.RetentionStrength,
	)

	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Search performs vector search using pgvector's cosine similarity.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	queryVectorStr := vectorToString(embedding)

	// Build WHERE clause (starting from $2 since $1 is the query vector)
	whereClause, filterArgs := buildWhereClauseWithOffset(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
		ActorID: opts.ActorID,
	}, opts.Filters, 2)

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	// Use pgvector's <=> operator (cosine distance, 1 - cosine similarity)
	query := fmt.Sprintf(`
		SELECT
			%s,
			1 - (embedding <=> $1) as similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, memoryColumns, c.collectionName, whereClause, len(filterArgs)+2)

	allArgs := []interface{}{queryVectorStr}
	allArgs = append(allArgs, filterArgs...)
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	memories, err := c.scanMemories(rows, true)
	if err != nil {
		return nil, err
	}

	if opts.MinScore > 0 {
		filtered := memories[:0]
		for _, m := range memories {
			if m.Score >= opts.MinScore {
				filtered = append(filtered, m)
			}
		}
		memories = filtered
	}

	return memories, nil
}

// Get retrieves a memory by ID with optional access control.
func (c *Client) Get(ctx context.Context, id string, opts *storage.GetOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		whereClause += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if opts.AgentID != "" {
		args = append(args, opts.AgentID)
		whereClause += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if opts.RunID != "" {
		args = append(args, opts.RunID)
		whereClause += fmt.Sprintf(" AND run_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
	`, memoryColumns, c.collectionName, whereClause)

	row := c.db.QueryRowContext(ctx, query, args...)

	memory, err := c.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return memory, nil
}

// GetByHash retrieves a memory by content hash within a scope.
func (c *Client) GetByHash(ctx context.Context, hash string, opts *storage.GetOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.GetOptions{}
	}

	whereClause := "WHERE hash = $1"
	args := []interface{}{hash}

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		whereClause += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if opts.AgentID != "" {
		args = append(args, opts.AgentID)
		whereClause += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if opts.RunID != "" {
		args = append(args, opts.RunID)
		whereClause += fmt.Sprintf(" AND run_id = $%d", len(args))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		LIMIT 1
	`, memoryColumns, c.collectionName, whereClause)

	row := c.db.QueryRowContext(ctx, query, args...)

	memory, err := c.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByHash: %w", err)
	}

	return memory, nil
}

// Update updates a memory with optional access control.
func (c *Client) Update(ctx context.Context, id string, content string, embedding []float64, opts *storage.UpdateOptions) (*storage.Memory, error) {
	if opts == nil {
		opts = &storage.UpdateOptions{}
	}

	vectorStr := vectorToString(embedding)

	setClause := "SET content = $1, embedding = $2, hash = $3, updated_at = $4"
	args := []interface{}{content, vectorStr, storage.ContentHash(content), time.Now()}

	if opts.Metadata != nil {
		metadataJSON, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("Update: %w", err)
		}
		args = append(args, string(metadataJSON))
		setClause += fmt.Sprintf(", metadata = $%d", len(args))
	}

	args = append(args, id)
	whereClause := fmt.Sprintf("WHERE id = $%d", len(args))

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		whereClause += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if opts.AgentID != "" {
		args = append(args, opts.AgentID)
		whereClause += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}

	query := fmt.Sprintf("UPDATE %s %s %s", c.collectionName, setClause, whereClause)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	if rowsAffected == 0 {
		return nil, storage.ErrNotFound
	}

	return c.Get(ctx, id, &storage.GetOptions{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
	})
}

// UpdateRetention sets a memory's retention strength.
func (c *Client) UpdateRetention(ctx context.Context, id string, strength float64) error {
	query := fmt.Sprintf("UPDATE %s SET retention_strength = $1 WHERE id = $2", c.collectionName)

	result, err := c.db.ExecContext(ctx, query, strength, id)
	if err != nil {
		return fmt.Errorf("UpdateRetention: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateRetention: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Delete deletes a memory with optional access control.
func (c *Client) Delete(ctx context.Context, id string, opts *storage.DeleteOptions) error {
	if opts == nil {
		opts = &storage.DeleteOptions{}
	}

	whereClause := "WHERE id = $1"
	args := []interface{}{id}

	if opts.UserID != "" {
		args = append(args, opts.UserID)
		whereClause += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if opts.AgentID != "" {
		args = append(args, opts.AgentID)
		whereClause += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)

	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// GetAll retrieves all memories.
func (c *Client) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	if opts == nil {
		opts = &storage.GetAllOptions{}
	}

	whereClause, args := buildWhereClauseWithOffset(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
		ActorID: opts.ActorID,
	}, nil, 1)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, memoryColumns, c.collectionName, whereClause, len(args)+1, len(args)+2)

	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return c.scanMemories(rows, false)
}

// DeleteAll deletes all memories.
func (c *Client) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	if opts == nil {
		opts = &storage.DeleteAllOptions{}
	}

	whereClause, args := buildWhereClauseWithOffset(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
	}, nil, 1)

	query := fmt.Sprintf("DELETE FROM %s %s", c.collectionName, whereClause)

	_, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("DeleteAll: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const memoryColumns = `id, user_id, agent_id, run_id, actor_id, role, is_key, hash, content, embedding, metadata,
	       created_at, updated_at, retention_strength`

// vectorToString converts a vector to PostgreSQL vector format.
func vectorToString(vector []float64) string {
	if len(vector) == 0 {
		return "[]"
	}

	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%f", v)
	}

	return "[" + strings.Join(parts, ",") + "]"
}

// scanMemory scans a single memory.
func (c *Client) scanMemory(row *sql.Row) (*storage.Memory, error) {
	var memory storage.Memory
	var embeddingStr string
	var metadataStr []byte

	err := row.Scan(
		&memory.ID,
		&memory.UserID,
		&memory.AgentID,
		&memory.RunID,
		&memory.ActorID,
		&memory.Role,
		&memory.IsKey,
		&memory.Hash,
		&memory.Content,
		&embeddingStr,
		&metadataStr,
		&memory.CreatedAt,
		&memory.UpdatedAt,
		&memory.RetentionStrength,
	)
	if err != nil {
		return nil, err
	}

	if err := fillParsedFields(&memory, embeddingStr, metadataStr); err != nil {
		return nil, err
	}

	return &memory, nil
}

// scanMemories scans multiple memories.
func (c *Client) scanMemories(rows *sql.Rows, hasScore bool) ([]*storage.Memory, error) {
	var memories []*storage.Memory

	for rows.Next() {
		var memory storage.Memory
		var embeddingStr string
		var metadataStr []byte
		var similarity float64

		dest := []interface{}{
			&memory.ID,
			&memory.UserID,
			&memory.AgentID,
			&memory.RunID,
			&memory.ActorID,
			&memory.Role,
			&memory.IsKey,
			&memory.Hash,
			&memory.Content,
			&embeddingStr,
			&metadataStr,
			&memory.CreatedAt,
			&memory.UpdatedAt,
			&memory.RetentionStrength,
		}
		if hasScore {
			dest = append(dest, &similarity)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if hasScore {
			memory.Score = similarity
		}

		if err := fillParsedFields(&memory, embeddingStr, metadataStr); err != nil {
			return nil, err
		}

		memories = append(memories, &memory)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return memories, nil
}

// fillParsedFields decodes the embedding and metadata columns into the memory.
func fillParsedFields(memory *storage.Memory, embeddingStr string, metadataStr []byte) error {
	embedding, err := parseVectorString(embeddingStr)
	if err != nil {
		return fmt.Errorf("parse embedding: %w", err)
	}
	memory.Embedding = embedding

	if len(metadataStr) > 0 {
		if err := json.Unmarshal(metadataStr, &memory.Metadata); err != nil {
			return fmt.Errorf("parse metadata: %w", err)
		}
	}

	return nil
}

// parseVectorString parses a PostgreSQL vector string.
func parseVectorString(s string) ([]float64, error) {
	// Remove leading and trailing square brackets
	s = strings.Trim(s, "[]")
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))

	for i, part := range parts {
		var val float64
		_, err := fmt.Sscanf(strings.TrimSpace(part), "%f", &val)
		if err != nil {
			return nil, err
		}
		result[i] = val
	}

	return result, nil
}
