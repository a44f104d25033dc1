package cache

import (
	"errors"
	"sync/atomic"
)

// ErrCacheMiss is returned by Backend.Get when the key is absent.
// Backends must map their native not-found signal to this error.
var ErrCacheMiss = errors.New("cache: key not found")

// statsCounters holds the live atomic counters behind Stats.
type statsCounters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	errors        atomic.Int64
	invalidations atomic.Int64
}
