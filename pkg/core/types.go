// Package core provides the main mnemo client and memory management functionality.
package core

import (
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/graph"
)

// Memory represents a single memory stored in the system.
//
// A memory contains:
//   - Content: The text content of the memory
//   - Embedding: Vector representation for similarity search
//   - Metadata: Additional structured information
//   - RetentionStrength: Current retention strength (0.0-1.0)
//
// Example:
//
//	memory := &core.Memory{
//	    ID:      "7d7706b5-1e06-4c6e-9c0e-7a6c3f2d9b10",
//	    UserID:  "user_001",
//	    Content: "User likes Python programming",
//	    Metadata: map[string]interface{}{
//	        "source": "conversation",
//	    },
//	}
type Memory struct {
	// ID is the unique identifier of the memory (UUID).
	ID string `json:"id"`

	// UserID identifies the user who owns this memory.
	UserID string `json:"user_id"`

	// AgentID identifies the agent associated with this memory (optional).
	AgentID string `json:"agent_id,omitempty"`

	// RunID identifies the run/session associated with this memory (optional).
	RunID string `json:"run_id,omitempty"`

	// ActorID identifies the conversation participant the memory is about.
	ActorID string `json:"actor_id,omitempty"`

	// Role is the conversational role of the actor ("user", "assistant").
	Role string `json:"role,omitempty"`

	// IsKey marks memories pinned as key facts.
	IsKey bool `json:"is_key,omitempty"`

	// Hash is the content hash used for idempotent inserts.
	Hash string `json:"hash,omitempty"`

	// Content is the text content of the memory.
	Content string `json:"content"`

	// Embedding is the vector embedding for similarity search.
	// Omitted from JSON to reduce payload size.
	Embedding []float64 `json:"-"`

	// Metadata contains additional structured information about the memory.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the memory was created. Preserved across updates.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time `json:"updated_at"`

	// RetentionStrength is the current retention strength (0.0-1.0).
	// 1.0 = perfect retention, 0.0 = completely forgotten.
	RetentionStrength float64 `json:"retention_strength"`

	// Score is the similarity score from search operations (0.0-1.0).
	Score float64 `json:"score,omitempty"`
}

// ActionResult describes one mutation performed during an Add.
type ActionResult struct {
	// ID is the memory ID the action touched.
	ID string `json:"id"`

	// Memory is the memory content after the action.
	Memory string `json:"memory"`

	// Event is the action type: ADD, UPDATE, DELETE, or NONE.
	Event string `json:"event"`

	// PreviousMemory is the content before an UPDATE.
	PreviousMemory string `json:"previous_memory,omitempty"`
}

// AddResult is the combined outcome of an Add call: the vector-store
// actions plus the graph relations touched, when a graph store is wired.
type AddResult struct {
	// Results lists the memory actions performed.
	Results []ActionResult `json:"results"`

	// Relations lists graph relations added by this call, if any.
	Relations []*graph.Relation `json:"relations,omitempty"`
}

// SearchResult is the combined outcome of a Search or GetAll call.
type SearchResult struct {
	// Results is the list of matching memories, sorted by relevance.
	Results []*Memory `json:"results"`

	// Relations lists graph relations relevant to the query, if any.
	Relations []*graph.Relation `json:"relations,omitempty"`
}
