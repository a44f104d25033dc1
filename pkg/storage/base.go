// Package storage provides interfaces and types for vector storage backends.
//
// It defines the VectorStore interface that all storage implementations must satisfy,
// along with memory types and configuration options.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentHash returns the SHA-256 hex digest of the given text.
//
// Backends store it in the hash column on insert and refresh it whenever
// Update rewrites content, so a hash lookup always reflects the stored text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Memory represents a memory stored in the vector store.
//
// This type is defined in the storage package to avoid circular dependencies
// with the core package. It mirrors the core.Memory structure.
type Memory struct {
	// ID is the unique identifier of the memory (UUID string).
	ID string

	// UserID identifies the user who owns this memory.
	UserID string

	// AgentID identifies the agent associated with this memory.
	AgentID string

	// RunID identifies the session or run this memory belongs to.
	RunID string

	// ActorID identifies the conversation participant the memory is about.
	ActorID string

	// Role is the conversational role of the actor ("user", "assistant").
	Role string

	// IsKey marks memories pinned as key facts.
	IsKey bool

	// Hash is the content hash used for idempotent inserts within a scope.
	Hash string

	// Content is the text content of the memory.
	Content string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the memory was created. It is preserved across updates.
	CreatedAt time.Time

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time

	// RetentionStrength is the current retention strength (0.0-1.0).
	RetentionStrength float64

	// Score is the similarity score from search operations.
	Score float64
}

// VectorStore defines the interface for vector storage backends.
//
// All storage implementations (SQLite, PostgreSQL, OceanBase) must implement this interface.
type VectorStore interface {
	// Insert inserts a memory into the store.
	Insert(ctx context.Context, memory *Memory) error

	// Search performs vector similarity search.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - embedding: Query embedding vector
	//   - opts: Search options (UserID, AgentID, Limit, MinScore, Filters)
	//
	// Returns matching memories sorted by similarity (highest first).
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Memory, error)

	// Get retrieves a memory by ID with optional access control.
	//
	// If opts.UserID or opts.AgentID is specified, the memory will only be returned
	// if it matches the specified user/agent (multi-tenant isolation).
	Get(ctx context.Context, id string, opts *GetOptions) (*Memory, error)

	// GetByHash retrieves a memory by content hash within a scope.
	//
	// Used for idempotent inserts: adding content that already exists in the
	// scope is a no-op.
	GetByHash(ctx context.Context, hash string, opts *GetOptions) (*Memory, error)

	// Update updates a memory's content and embedding with optional access control.
	//
	// CreatedAt is preserved; only UpdatedAt advances. If opts.UserID or
	// opts.AgentID is specified, the update only succeeds if the memory
	// belongs to the specified user/agent.
	Update(ctx context.Context, id string, content string, embedding []float64, opts *UpdateOptions) (*Memory, error)

	// UpdateRetention sets a memory's retention strength.
	UpdateRetention(ctx context.Context, id string, strength float64) error

	// Delete deletes a memory by ID with optional access control.
	//
	// If opts.UserID or opts.AgentID is specified, the delete will only succeed
	// if the memory belongs to the specified user/agent (access control).
	Delete(ctx context.Context, id string, opts *DeleteOptions) error

	// GetAll retrieves all memories with optional filtering and pagination.
	GetAll(ctx context.Context, opts *GetAllOptions) ([]*Memory, error)

	// DeleteAll deletes all memories matching the given filters.
	DeleteAll(ctx context.Context, opts *DeleteAllOptions) error

	// Close closes the store and releases resources.
	Close() error
}

// SearchOptions contains options for search operations.
type SearchOptions struct {
	// UserID filters results to a specific user.
	UserID string

	// AgentID filters results to a specific agent.
	AgentID string

	// RunID filters results to a specific run/session.
	RunID string

	// ActorID filters results to a specific actor.
	ActorID string

	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore sets the minimum similarity score for results.
	MinScore float64

	// Filters provides additional metadata filters.
	Filters map[string]interface{}
}

// GetOptions contains options for get operations with access control.
type GetOptions struct {
	// UserID restricts access to memories belonging to this user.
	// If specified, Get will return an error if the memory's UserID doesn't match.
	// This enables multi-tenant isolation.
	UserID string

	// AgentID restricts access to memories belonging to this agent.
	AgentID string

	// RunID restricts access to memories belonging to this run/session.
	RunID string
}

// UpdateOptions contains options for update operations with access control.
type UpdateOptions struct {
	// UserID restricts updates to memories belonging to this user.
	// If specified, Update will fail if the memory's UserID doesn't match.
	UserID string

	// AgentID restricts updates to memories belonging to this agent.
	AgentID string

	// Metadata replaces the memory's metadata when non-nil.
	Metadata map[string]interface{}
}

// DeleteOptions contains options for delete operations with access control.
type DeleteOptions struct {
	// UserID restricts deletions to memories belonging to this user.
	// If specified, Delete will fail if the memory's UserID doesn't match.
	UserID string

	// AgentID restricts deletions to memories belonging to this agent.
	AgentID string
}

// GetAllOptions contains options for GetAll operations.
type GetAllOptions struct {
	// UserID filters results to a specific user.
	UserID string

	// AgentID filters results to a specific agent.
	AgentID string

	// RunID filters results to a specific run/session.
	RunID string

	// ActorID filters results to a specific actor.
	ActorID string

	// Limit sets the maximum number of results to return.
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}

// DeleteAllOptions contains options for DeleteAll operations.
type DeleteAllOptions struct {
	// UserID filters deletions to a specific user.
	UserID string

	// AgentID filters deletions to a specific agent.
	AgentID string

	// RunID filters deletions to a specific run/session.
	RunID string
}
