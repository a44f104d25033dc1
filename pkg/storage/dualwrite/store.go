// Package dualwrite provides a VectorStore wrapper for live storage migration.
//
// It forwards every operation to a primary store and, depending on the active
// mode, mirrors writes to a secondary store and cross-checks reads against it.
// The secondary is strictly best-effort: its failures are logged and counted
// but never surface to callers, so a migration in progress cannot break the
// memory layer.
package dualwrite

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// Mode selects how reads and writes are routed between the two stores.
type Mode string

const (
	// ModePrimaryOnly routes everything to the primary store.
	ModePrimaryOnly Mode = "primary_only"

	// ModeDualWrite writes to both stores and reads from the primary.
	ModeDualWrite Mode = "dual_write"

	// ModeDualRead writes to both stores, reads from the primary, and
	// compares search results against the secondary.
	ModeDualRead Mode = "dual_read"

	// ModeSecondaryOnly routes everything to the secondary store.
	// Terminal state of a migration, before the old store is retired.
	ModeSecondaryOnly Mode = "secondary_only"
)

// compareOverlapThreshold is the minimum id-set overlap ratio between primary
// and secondary search results before a comparison counts as a mismatch.
const compareOverlapThreshold = 0.8

// compareTopN limits result comparison to the head of each result list.
const compareTopN = 10

// Stats tracks migration counters.
type Stats struct {
	PrimaryWrites   int64 `json:"primary_writes"`
	SecondaryWrites int64 `json:"secondary_writes"`
	SecondaryErrors int64 `json:"secondary_errors"`
	ReadsCompared   int64 `json:"reads_compared"`
	Mismatches      int64 `json:"mismatches"`
}

// Store implements storage.VectorStore across a primary and secondary store.
type Store struct {
	primary   storage.VectorStore
	secondary storage.VectorStore

	mu    sync.RWMutex
	mode  Mode
	stats Stats
}

// New creates a dual-write store in the given initial mode.
//
// Parameters:
//   - primary: The store currently serving reads
//   - secondary: The store being migrated to (may be nil in ModePrimaryOnly)
//   - mode: Initial routing mode
//
// Returns:
//   - *Store: The dual-write store
//   - error: Returns an error if the mode requires a store that is nil
func New(primary, secondary storage.VectorStore, mode Mode) (*Store, error) {
	if primary == nil {
		return nil, fmt.Errorf("dualwrite: primary store is required")
	}
	if mode != ModePrimaryOnly && secondary == nil {
		return nil, fmt.Errorf("dualwrite: mode %q requires a secondary store", mode)
	}

	return &Store{
		primary:   primary,
		secondary: secondary,
		mode:      mode,
	}, nil
}

// Mode returns the current routing mode.
func (s *Store) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode changes the routing mode at runtime.
//
// Returns an error if the new mode requires a secondary store and none is
// configured.
func (s *Store) SetMode(mode Mode) error {
	if mode != ModePrimaryOnly && s.secondary == nil {
		return fmt.Errorf("dualwrite: mode %q requires a secondary store", mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	return nil
}

// Stats returns a snapshot of the migration counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// readStore returns the store serving reads under the current mode.
func (s *Store) readStore() storage.VectorStore {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary
	}
	return s.primary
}

// writeBoth reports whether writes should be mirrored to the secondary.
func (s *Store) writeBoth() bool {
	mode := s.Mode()
	return mode == ModeDualWrite || mode == ModeDualRead
}

// Insert inserts into the primary (or secondary in secondary_only mode) and
// mirrors the write when dual modes are active.
func (s *Store) Insert(ctx context.Context, memory *storage.Memory) error {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.Insert(ctx, memory)
	}

	if err := s.primary.Insert(ctx, memory); err != nil {
		return err
	}
	s.count(func(st *Stats) { st.PrimaryWrites++ })

	if s.writeBoth() {
		if err := s.secondary.Insert(ctx, memory); err != nil {
			s.secondaryFailed("insert", memory.ID, err)
		} else {
			s.count(func(st *Stats) { st.SecondaryWrites++ })
		}
	}

	return nil
}

// Search reads from the active store. In dual_read mode the same query also
// runs against the secondary and the result id sets are compared.
func (s *Store) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Memory, error) {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.Search(ctx, embedding, opts)
	}

	results, err := s.primary.Search(ctx, embedding, opts)
	if err != nil {
		return nil, err
	}

	if s.Mode() == ModeDualRead {
		s.compareSearch(ctx, embedding, opts, results)
	}

	return results, nil
}

// compareSearch runs the query against the secondary and counts a mismatch
// when the top result id sets overlap below the threshold.
func (s *Store) compareSearch(ctx context.Context, embedding []float64, opts *storage.SearchOptions, primaryResults []*storage.Memory) {
	secondaryResults, err := s.secondary.Search(ctx, embedding, opts)
	if err != nil {
		s.secondaryFailed("search", "", err)
		return
	}

	s.count(func(st *Stats) { st.ReadsCompared++ })

	ratio := overlapRatio(topIDs(primaryResults), topIDs(secondaryResults))
	if ratio < compareOverlapThreshold {
		s.count(func(st *Stats) { st.Mismatches++ })
		log.Printf("dualwrite: search result mismatch (overlap %.2f, primary=%d secondary=%d)",
			ratio, len(primaryResults), len(secondaryResults))
	}
}

// Get reads from the active store.
func (s *Store) Get(ctx context.Context, id string, opts *storage.GetOptions) (*storage.Memory, error) {
	return s.readStore().Get(ctx, id, opts)
}

// GetByHash reads from the active store.
func (s *Store) GetByHash(ctx context.Context, hash string, opts *storage.GetOptions) (*storage.Memory, error) {
	return s.readStore().GetByHash(ctx, hash, opts)
}

// Update updates the primary and mirrors the update when dual modes are active.
func (s *Store) Update(ctx context.Context, id string, content string, embedding []float64, opts *storage.UpdateOptions) (*storage.Memory, error) {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.Update(ctx, id, content, embedding, opts)
	}

	memory, err := s.primary.Update(ctx, id, content, embedding, opts)
	if err != nil {
		return nil, err
	}
	s.count(func(st *Stats) { st.PrimaryWrites++ })

	if s.writeBoth() {
		if _, err := s.secondary.Update(ctx, id, content, embedding, opts); err != nil {
			s.secondaryFailed("update", id, err)
		} else {
			s.count(func(st *Stats) { st.SecondaryWrites++ })
		}
	}

	return memory, nil
}

// UpdateRetention updates the primary and mirrors when dual modes are active.
func (s *Store) UpdateRetention(ctx context.Context, id string, strength float64) error {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.UpdateRetention(ctx, id, strength)
	}

	if err := s.primary.UpdateRetention(ctx, id, strength); err != nil {
		return err
	}

	if s.writeBoth() {
		if err := s.secondary.UpdateRetention(ctx, id, strength); err != nil {
			s.secondaryFailed("update_retention", id, err)
		}
	}

	return nil
}

// Delete deletes from the primary and mirrors when dual modes are active.
func (s *Store) Delete(ctx context.Context, id string, opts *storage.DeleteOptions) error {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.Delete(ctx, id, opts)
	}

	if err := s.primary.Delete(ctx, id, opts); err != nil {
		return err
	}
	s.count(func(st *Stats) { st.PrimaryWrites++ })

	if s.writeBoth() {
		if err := s.secondary.Delete(ctx, id, opts); err != nil {
			s.secondaryFailed("delete", id, err)
		} else {
			s.count(func(st *Stats) { st.SecondaryWrites++ })
		}
	}

	return nil
}

// GetAll reads from the active store.
func (s *Store) GetAll(ctx context.Context, opts *storage.GetAllOptions) ([]*storage.Memory, error) {
	return s.readStore().GetAll(ctx, opts)
}

// DeleteAll deletes from the primary and mirrors when dual modes are active.
func (s *Store) DeleteAll(ctx context.Context, opts *storage.DeleteAllOptions) error {
	if s.Mode() == ModeSecondaryOnly {
		return s.secondary.DeleteAll(ctx, opts)
	}

	if err := s.primary.DeleteAll(ctx, opts); err != nil {
		return err
	}
	s.count(func(st *Stats) { st.PrimaryWrites++ })

	if s.writeBoth() {
		if err := s.secondary.DeleteAll(ctx, opts); err != nil {
			s.secondaryFailed("delete_all", "", err)
		} else {
			s.count(func(st *Stats) { st.SecondaryWrites++ })
		}
	}

	return nil
}

// Close closes both stores, returning the first error encountered.
func (s *Store) Close() error {
	err := s.primary.Close()
	if s.secondary != nil {
		if serr := s.secondary.Close(); err == nil {
			err = serr
		}
	}
	return err
}

func (s *Store) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

func (s *Store) secondaryFailed(op, id string, err error) {
	s.count(func(st *Stats) { st.SecondaryErrors++ })
	if id != "" {
		log.Printf("dualwrite: secondary %s failed for %s: %v", op, id, err)
	} else {
		log.Printf("dualwrite: secondary %s failed: %v", op, err)
	}
}

// topIDs collects the ids of the first compareTopN results.
func topIDs(memories []*storage.Memory) map[string]struct{} {
	ids := make(map[string]struct{})
	for i, m := range memories {
		if i >= compareTopN {
			break
		}
		ids[m.ID] = struct{}{}
	}
	return ids
}

// overlapRatio returns the size of the intersection divided by the size of
// the larger set. Two empty sets agree fully.
func overlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	max := len(a)
	if len(b) > max {
		max = len(b)
	}

	var common int
	for id := range a {
		if _, ok := b[id]; ok {
			common++
		}
	}

	return float64(common) / float64(max)
}
