// Package sqlite provides a SQLite implementation of the history store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
)

// Store implements history.Store using SQLite as the backend.
type Store struct {
	db        *sql.DB
	tableName string
	node      *snowflake.Node
}

// Config contains configuration for creating a SQLite history store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the history table, defaults to "history".
	TableName string

	// NodeID is the snowflake node id used for row id generation.
	NodeID int64
}

// NewStore creates a new SQLite history store.
//
// Parameters:
//   - cfg: Configuration containing database path and table name
//
// Returns:
//   - *Store: The history store instance
//   - error: Error if database connection or table creation fails
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewHistoryStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL")
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
			id INTEGER PRIMARY KEY,
			memory_id TEXT NOT NULL,
			old_memory TEXT,
			new_memory TEXT,
			event TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME,
			is_deleted INTEGER DEFAULT 0,
			actor_id TEXT,
			role TEXT
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
			id INTEGER PRIMARY KEY,
			old_memory_id TEXT NOT NULL,
			new_memory_id TEXT NOT NULL,
			reason TEXT,
			confidence REAL,
			created_at DATETIME
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		WHERE memory_id = ?
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
		VALUES (?, ?, ?, ?, ?, ?)
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
		WHERE old_memory_id = ? OR new_memory_id = ?
		ORDER BY created_at ASC, id ASC
	`, s.supersessionTable())

	rows, err := s.db.QueryContext(ctx, query, memoryID, memoryID)
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
