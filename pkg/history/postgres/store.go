// Package postgres provides a PostgreSQL implementation of the history store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
)

// Store implements history.Store using PostgreSQL as the backend.
type Store struct {
	db        *sql.DB
	tableName string
	node      *snowflake.Node
}

// Config contains configuration for creating a PostgreSQL history store.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
	SSLMode   string

	// NodeID is the snowflake node id used for row id generation.
	NodeID int64
}

// NewStore creates a new PostgreSQL history store.
func NewStore(cfg *Config) (*Store, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewHistoryStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewHistoryStore: %w", err)
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = "history"
	}

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("NewHistoryStore: %w", err)
	}

	store := &Store{
		db:        db,
		tableName: tableName,
		node:      node,
	}

	if err := store.initTables(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

// initTables initializes the history table.
func (s *Store) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			memory_id VARCHAR(36) NOT NULL,
			old_memory TEXT,
			new_memory TEXT,
			event VARCHAR(16) NOT NULL,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			is_deleted BOOLEAN DEFAULT FALSE,
			actor_id VARCHAR(255),
			role VARCHAR(32)
		)
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_memory_id ON %s(memory_id)
	`, s.tableName, s.tableName)
	_, err = s.db.ExecContext(ctx, indexQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	supersessionQuery := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			old_memory_id VARCHAR(36) NOT NULL,
			new_memory_id VARCHAR(36) NOT NULL,
			reason VARCHAR(32),
			confidence DOUBLE PRECISION,
			created_at TIMESTAMP
		)
	`, s.supersessionTable())
	_, err = s.db.ExecContext(ctx, supersessionQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// supersessionTable is the supersession audit table paired with the
// history table.
func (s *Store) supersessionTable() string {
	return s.tableName + "_supersessions"
}

// Add appends a history entry.
func (s *Store) Add(ctx context.Context, entry *history.Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, memory_id, old_memory, new_memory, event, created_at, updated_at, is_deleted, actor_id, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.tableName)

	entry.ID = s.node.Generate().Int64()
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.MemoryID,
		entry.OldMemory,
		entry.NewMemory,
		entry.Event,
		entry.CreatedAt,
		entry.UpdatedAt,
		entry.IsDeleted,
		entry.ActorID,
		entry.Role,
	)

	if err != nil {
		return fmt.Errorf("Add: %w", err)
	}

	return nil
}

// List returns all entries for a memory, oldest first.
func (s *Store) List(ctx context.Context, memoryID string) ([]*history.Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, memory_id, old_memory, new_memory, event, created_at, updated_at, is_deleted, actor_id, role
		FROM %s
		WHERE memory_id = $1
		ORDER BY updated_at ASC, id ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*history.Entry
	for rows.Next() {
		var entry history.Entry
		var createdAt, updatedAt sql.NullTime

		err := rows.Scan(
			&entry.ID,
			&entry.MemoryID,
			&entry.OldMemory,
			&entry.NewMemory,
			&entry.Event,
			&createdAt,
			&updatedAt,
			&entry.IsDeleted,
			&entry.ActorID,
			&entry.Role,
		)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}

		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			entry.UpdatedAt = updatedAt.Time
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// RecordSupersession appends a supersession row.
func (s *Store) RecordSupersession(ctx context.Context, sup *history.Supersession) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, old_memory_id, new_memory_id, reason, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.supersessionTable())

	sup.ID = s.node.Generate().Int64()
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		sup.ID,
		sup.OldMemoryID,
		sup.NewMemoryID,
		sup.Reason,
		sup.Confidence,
		sup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("RecordSupersession: %w", err)
	}

	return nil
}

// ListSupersessions returns supersession rows referencing the memory on
// either side, oldest first.
func (s *Store) ListSupersessions(ctx context.Context, memoryID string) ([]*history.Supersession, error) {
	query := fmt.Sprintf(`
		SELECT id, old_memory_id, new_memory_id, reason, confidence, created_at
		FROM %s
		WHERE old_memory_id = $1 OR new_memory_id = $1
		ORDER BY created_at ASC, id ASC
	`, s.supersessionTable())

	rows, err := s.db.QueryContext(ctx, query, memoryID)
	if err != nil {
		return nil, fmt.Errorf("ListSupersessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var supersessions []*history.Supersession
	for rows.Next() {
		var sup history.Supersession
		var createdAt sql.NullTime

		err := rows.Scan(
			&sup.ID,
			&sup.OldMemoryID,
			&sup.NewMemoryID,
			&sup.Reason,
			&sup.Confidence,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ListSupersessions: %w", err)
		}

		if createdAt.Valid {
			sup.CreatedAt = createdAt.Time
		}

		supersessions = append(supersessions, &sup)
	}

	return supersessions, rows.Err()
}

// Reset drops all history rows.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{s.tableName, s.supersessionTable()} {
		query := fmt.Sprintf("DELETE FROM %s", table)
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("Reset: %w", err)
		}
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
