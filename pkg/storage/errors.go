package storage

import "errors"

// ErrNotFound is returned when a memory does not exist or the caller's
// scope does not grant access to it.
var ErrNotFound = errors.New("storage: memory not found")
