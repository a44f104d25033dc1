// Package history provides append-only audit storage for memory mutations.
//
// Every add, update, and delete of a memory produces a history entry. Entries
// are never rewritten: a deletion appends a terminal row flagged is_deleted
// instead of touching earlier rows, so the full lifecycle of a memory can be
// reconstructed at any time.
package history

import (
	"context"
	"time"
)

// Event names recorded in history entries.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Entry is a single history row.
type Entry struct {
	// ID is the unique row id (snowflake).
	ID int64

	// MemoryID is the id of the memory this entry belongs to.
	MemoryID string

	// OldMemory is the content before the mutation (empty for ADD).
	OldMemory string

	// NewMemory is the content after the mutation (empty for DELETE).
	NewMemory string

	// Event is the mutation type: ADD, UPDATE, or DELETE.
	Event string

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// UpdatedAt is when the mutation happened.
	UpdatedAt time.Time

	// IsDeleted marks the terminal entry written by a DELETE.
	IsDeleted bool

	// ActorID identifies the conversation participant behind the mutation.
	ActorID string

	// Role is the conversational role of the actor.
	Role string
}

// Supersession is an audit row linking a new memory to the existing memory
// it displaced after a contradiction was detected. Like history entries,
// supersession rows are append-only.
type Supersession struct {
	// ID is the unique row id (snowflake).
	ID int64

	// OldMemoryID is the contradicted memory that was displaced.
	OldMemoryID string

	// NewMemoryID is the memory that takes precedence.
	NewMemoryID string

	// Reason is the contradiction type that triggered the supersession.
	Reason string

	// Confidence is the contradiction detection confidence in [0, 1].
	Confidence float64

	// CreatedAt is when the supersession was recorded.
	CreatedAt time.Time
}

// Store defines the interface for history backends.
type Store interface {
	// Add appends a history entry. The entry's ID is assigned by the store.
	Add(ctx context.Context, entry *Entry) error

	// List returns all entries for a memory, oldest first.
	List(ctx context.Context, memoryID string) ([]*Entry, error)

	// RecordSupersession appends a supersession row. The row's ID is
	// assigned by the store.
	RecordSupersession(ctx context.Context, s *Supersession) error

	// ListSupersessions returns all supersession rows referencing the given
	// memory on either side, oldest first.
	ListSupersessions(ctx context.Context, memoryID string) ([]*Supersession, error)

	// Reset drops all history rows.
	Reset(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
