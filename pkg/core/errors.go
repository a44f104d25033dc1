// Package core provides the main mnemo client and memory management functionality.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNoScope indicates that no scoping identifier (user, agent, or run)
	// was supplied for an operation that requires one. This is the only
	// error class surfaced to callers by contract; nothing is written.
	ErrNoScope = errors.New("no scoping identifier supplied")

	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProvider indicates that an embedding, LLM, or store call failed
	// or timed out.
	ErrProvider = errors.New("provider call failed")

	// ErrParse indicates that an LLM response was not valid structured output.
	ErrParse = errors.New("response parse failed")

	// ErrCache indicates a cache backend failure. Cache errors are always
	// treated as misses and never surfaced to callers.
	ErrCache = errors.New("cache operation failed")
)

// MemoryError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &MemoryError{
//	    Op:  "Add",
//	    Err: ErrProvider,
//	}
//	// Error() returns: "mnemo: Add: provider call failed"
type MemoryError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "mnemo: <Op>: <Err>"
func (e *MemoryError) Error() string {
	return fmt.Sprintf("mnemo: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with MemoryError.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError creates a new MemoryError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewMemoryError("Add", err)
//	}
//
// Parameters:
//   - op: Name of the operation (e.g., "Add", "Search", "Update")
//   - err: The underlying error to wrap
//
// Returns a MemoryError, or nil if err is nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{
		Op:  op,
		Err: err,
	}
}
