// Package oceanbase provides an OceanBase implementation for vector storage.
//
// OceanBase speaks the MySQL protocol and offers a native VECTOR column type
// with server-side cosine distance, so search is pushed down to the database.
package oceanbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Client is an OceanBase client.
type Client struct {
	db             *sql.DB
	config         *Config
	collectionName string
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
}

// NewClient creates a new OceanBase client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{
		db:             db,
		config:         cfg,
		collectionName: cfg.CollectionName,
	}

	// Initialize table structure
	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(36) PRIMARY KEY,
			embedding VECTOR(%d),
			document LONGTEXT,
			metadata JSON,
			user_id VARCHAR(128),
			agent_id VARCHAR(128),
			run_id VARCHAR(128),
			actor_id VARCHAR(128),
			role VARCHAR(32),
			is_key TINYINT DEFAULT 0,
			hash VARCHAR(64),
			created_at DATETIME,
			updated_at DATETIME,
			retention_strength FLOAT DEFAULT 1.0,
			INDEX idx_user_agent (user_id, agent_id),
			INDEX idx_user_hash (user_id, hash)
		)
	`, c.collectionName, c.config.EmbeddingModelDims)

	_, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a memory.
func (c *Client) Insert(ctx context.Context, memory *storage.Memory) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, user_id, agent_id, run_id, actor_id, role, is_key, hash, document, embedding, metadata, created_at, updated_at, retention_strength)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

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
		metadataJSON,
		createdAt,
		now,
		memory.RetentionStrength,
	)

	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Search performs vector search using OceanBase's cosine_distance function.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if opts == nil {
		opts = &storage.SearchOptions{}
	}

	queryVectorStr := vectorToString(embedding)

	whereClause, args := buildWhereClause(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
		ActorID: opts.ActorID,
	}, opts.Filters)

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT
			%s,
			cosine_distance(embedding, ?) as distance
		FROM %s
		%s
		ORDER BY distance ASC
		LIMIT ?
	`, memoryColumns, c.collectionName, whereClause)

	// Query vector binds first, then scope filters, then the limit
	allArgs := append([]interface{}{queryVectorStr}, args...)
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

	whereClause := "WHERE id = ?"
	args := []interface{}{id}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}
	if opts.RunID != "" {
		whereClause += " AND run_id = ?"
		args = append(args, opts.RunID)
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

	whereClause := "WHERE hash = ?"
	args := []interface{}{hash}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
	}
	if opts.RunID != "" {
		whereClause += " AND run_id = ?"
		args = append(args, opts.RunID)
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

	setClause := "SET document = ?, embedding = ?, hash = ?, updated_at = ?"
	args := []interface{}{content, vectorStr, storage.ContentHash(content), time.Now()}

	if opts.Metadata != nil {
		metadataJSON, err := json.Marshal(opts.Metadata)
		if err != nil {
			return nil, fmt.Errorf("Update: %w", err)
		}
		setClause += ", metadata = ?"
		args = append(args, metadataJSON)
	}

	whereClause := "WHERE id = ?"
	args = append(args, id)

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
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
	query := fmt.Sprintf("UPDATE %s SET retention_strength = ? WHERE id = ?", c.collectionName)

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

	whereClause := "WHERE id = ?"
	args := []interface{}{id}

	if opts.UserID != "" {
		whereClause += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.AgentID != "" {
		whereClause += " AND agent_id = ?"
		args = append(args, opts.AgentID)
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

	whereClause, args := buildWhereClause(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
		ActorID: opts.ActorID,
	}, nil)

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, memoryColumns, c.collectionName, whereClause)

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

	whereClause, args := buildWhereClause(scopeFilter{
		UserID:  opts.UserID,
		AgentID: opts.AgentID,
		RunID:   opts.RunID,
	}, nil)

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

const memoryColumns = `id, user_id, agent_id, run_id, actor_id, role, is_key, hash, document, embedding, metadata,
	       created_at, updated_at, retention_strength`

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
func (c *Client) scanMemories(rows *sql.Rows, hasDistance bool) ([]*storage.Memory, error) {
	var memories []*storage.Memory

	for rows.Next() {
		var memory storage.Memory
		var embeddingStr string
		var metadataStr []byte
		var distance float64

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
		if hasDistance {
			dest = append(dest, &distance)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if hasDistance {
			// cosine_distance is 1 - cosine similarity
			memory.Score = 1 - distance
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
