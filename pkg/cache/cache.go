// Package cache provides a TTL cache layer for expensive memory operations.
//
// It caches embedding vectors, search results, and context snapshots under
// deterministic keys, so repeated requests skip provider and storage round
// trips. The cache is strictly an accelerator: every method degrades to a
// no-op when the backend is unavailable, and callers never see backend
// errors.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Key namespace prefixes. Every key carries the mnemo: prefix so a shared
// Redis instance can be scanned and flushed per concern.
const (
	embeddingPrefix = "mnemo:emb"
	searchPrefix    = "mnemo:search"
	snapshotPrefix  = "mnemo:snap"
)

// Default TTLs per cached concern. Embeddings are deterministic for a given
// model and text, so they live much longer than search results, which go
// stale on every mutation.
const (
	DefaultEmbeddingTTL = 24 * time.Hour
	DefaultSearchTTL    = 5 * time.Minute
	DefaultSnapshotTTL  = 10 * time.Minute
)

// Backend is the minimal key-value contract the cache layer needs.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key, or ErrCacheMiss if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteByPrefix removes every key that starts with prefix and returns
	// the number of keys removed.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Close releases backend resources.
	Close() error
}

// Stats tracks cache layer hit/miss counters. Counters are snapshots taken
// under the layer's lock; see Layer.Stats.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Errors        int64 `json:"errors"`
	Invalidations int64 `json:"invalidations"`
}

// Config controls cache layer TTLs. Zero values fall back to the package
// defaults.
type Config struct {
	EmbeddingTTL time.Duration
	SearchTTL    time.Duration
	SnapshotTTL  time.Duration
}

// Layer is the TTL cache for embeddings, search results, and snapshots.
//
// All methods are best-effort: a failing backend turns reads into misses and
// writes into no-ops. A nil *Layer is also valid and behaves as a permanent
// miss, so callers can wire caching in unconditionally.
type Layer struct {
	backend Backend
	cfg     Config
	stats   statsCounters
}

// NewLayer creates a cache layer over the given backend.
//
// Parameters:
//   - backend: Key-value backend (e.g., Redis)
//   - cfg: TTL configuration; zero values use defaults
//
// Returns the cache layer instance.
func NewLayer(backend Backend, cfg Config) *Layer {
	if cfg.EmbeddingTTL == 0 {
		cfg.EmbeddingTTL = DefaultEmbeddingTTL
	}
	if cfg.SearchTTL == 0 {
		cfg.SearchTTL = DefaultSearchTTL
	}
	if cfg.SnapshotTTL == 0 {
		cfg.SnapshotTTL = DefaultSnapshotTTL
	}
	return &Layer{backend: backend, cfg: cfg}
}

// GetEmbedding returns the cached vector for (model, text), or false on miss.
func (l *Layer) GetEmbedding(ctx context.Context, model, text string) ([]float64, bool) {
	if l == nil || l.backend == nil {
		return nil, false
	}

	var vec []float64
	if !l.get(ctx, embeddingKey(model, text), &vec) {
		return nil, false
	}
	return vec, true
}

// SetEmbedding caches the vector for (model, text).
func (l *Layer) SetEmbedding(ctx context.Context, model, text string, vec []float64) {
	if l == nil || l.backend == nil {
		return
	}
	l.set(ctx, embeddingKey(model, text), vec, l.cfg.EmbeddingTTL)
}

// GetSearch decodes cached search results for the given query into out.
//
// Parameters:
//   - userID: Scope owner of the cached results
//   - searchType: Result family, e.g. "vector" or "graph"
//   - query: The search query text
//   - filters: Additional filter values folded into the key
//   - out: Pointer the cached JSON is decoded into
//
// Returns true on a cache hit.
func (l *Layer) GetSearch(ctx context.Context, userID, searchType, query string, filters map[string]interface{}, out interface{}) bool {
	if l == nil || l.backend == nil {
		return false
	}
	return l.get(ctx, searchKey(userID, searchType, query, filters), out)
}

// SetSearch caches search results for the given query.
func (l *Layer) SetSearch(ctx context.Context, userID, searchType, query string, filters map[string]interface{}, results interface{}) {
	if l == nil || l.backend == nil {
		return
	}
	l.set(ctx, searchKey(userID, searchType, query, filters), results, l.cfg.SearchTTL)
}

// GetSnapshot decodes the cached context snapshot for (userID, agentID) into out.
func (l *Layer) GetSnapshot(ctx context.Context, userID, agentID string, out interface{}) bool {
	if l == nil || l.backend == nil {
		return false
	}
	return l.get(ctx, snapshotKey(userID, agentID), out)
}

// SetSnapshot caches the context snapshot for (userID, agentID).
func (l *Layer) SetSnapshot(ctx context.Context, userID, agentID string, snapshot interface{}) {
	if l == nil || l.backend == nil {
		return
	}
	l.set(ctx, snapshotKey(userID, agentID), snapshot, l.cfg.SnapshotTTL)
}

// InvalidateUser drops every cached search result and snapshot belonging to
// the user. Embedding entries are keyed by content, not by user, and survive
// invalidation on purpose.
//
// Call this after any mutation (add, update, delete) in the user's scope.
func (l *Layer) InvalidateUser(ctx context.Context, userID string) {
	if l == nil || l.backend == nil || userID == "" {
		return
	}

	for _, prefix := range []string{
		fmt.Sprintf("%s:%s:", searchPrefix, userID),
		fmt.Sprintf("%s:%s:", snapshotPrefix, userID),
	} {
		n, err := l.backend.DeleteByPrefix(ctx, prefix)
		if err != nil {
			l.stats.errors.Add(1)
			log.Printf("cache: invalidate %s failed: %v", prefix, err)
			continue
		}
		l.stats.invalidations.Add(int64(n))
	}
}

// Stats returns a snapshot of the hit/miss counters.
func (l *Layer) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{
		Hits:          l.stats.hits.Load(),
		Misses:        l.stats.misses.Load(),
		Errors:        l.stats.errors.Load(),
		Invalidations: l.stats.invalidations.Load(),
	}
}

// Close closes the underlying backend.
func (l *Layer) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

func (l *Layer) get(ctx context.Context, key string, out interface{}) bool {
	data, err := l.backend.Get(ctx, key)
	if err != nil {
		if err == ErrCacheMiss {
			l.stats.misses.Add(1)
		} else {
			l.stats.errors.Add(1)
			log.Printf("cache: get %s failed: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal(data, out); err != nil {
		// Stale or corrupt entry; treat as a miss
		l.stats.errors.Add(1)
		return false
	}

	l.stats.hits.Add(1)
	return true
}

func (l *Layer) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		l.stats.errors.Add(1)
		return
	}
	if err := l.backend.Set(ctx, key, data, ttl); err != nil {
		l.stats.errors.Add(1)
		log.Printf("cache: set %s failed: %v", key, err)
	}
}

// embeddingKey builds "mnemo:emb:{model}:{hash16}" where hash16 is the first
// 16 hex chars of the SHA-256 of the text.
func embeddingKey(model, text string) string {
	return fmt.Sprintf("%s:%s:%s", embeddingPrefix, model, shortHash(text))
}

// searchKey builds "mnemo:search:{user}:{type}:{hash16}" where the hash
// covers the query plus a canonical rendering of the filters, so the same
// query with different filters never collides.
func searchKey(userID, searchType, query string, filters map[string]interface{}) string {
	return fmt.Sprintf("%s:%s:%s:%s", searchPrefix, userID, searchType, shortHash(query+canonicalFilters(filters)))
}

// snapshotKey builds "mnemo:snap:{user}:{agent}".
func snapshotKey(userID, agentID string) string {
	return fmt.Sprintf("%s:%s:%s", snapshotPrefix, userID, agentID)
}

// canonicalFilters renders filters as JSON with sorted keys so the key is
// deterministic regardless of map iteration order.
func canonicalFilters(filters map[string]interface{}) string {
	if len(filters) == 0 {
		return ""
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(filters[k])
		sb.Write(kj)
		sb.WriteByte(':')
		sb.Write(vj)
	}
	sb.WriteByte('}')
	return sb.String()
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
