package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mnemo-labs/mnemo-go/pkg/cache"
	"github.com/mnemo-labs/mnemo-go/pkg/embedder"
	openaiEmbedder "github.com/mnemo-labs/mnemo-go/pkg/embedder/openai"
	"github.com/mnemo-labs/mnemo-go/pkg/graph"
	"github.com/mnemo-labs/mnemo-go/pkg/graph/neo4j"
	"github.com/mnemo-labs/mnemo-go/pkg/graph/sqlitegraph"
	"github.com/mnemo-labs/mnemo-go/pkg/history"
	postgresHistory "github.com/mnemo-labs/mnemo-go/pkg/history/postgres"
	sqliteHistory "github.com/mnemo-labs/mnemo-go/pkg/history/sqlite"
	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	anthropicLLM "github.com/mnemo-labs/mnemo-go/pkg/llm/anthropic"
	deepseekLLM "github.com/mnemo-labs/mnemo-go/pkg/llm/deepseek"
	openaiLLM "github.com/mnemo-labs/mnemo-go/pkg/llm/openai"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
	"github.com/mnemo-labs/mnemo-go/pkg/storage/dualwrite"
	oceanbaseStore "github.com/mnemo-labs/mnemo-go/pkg/storage/oceanbase"
	postgresStore "github.com/mnemo-labs/mnemo-go/pkg/storage/postgres"
	sqliteStore "github.com/mnemo-labs/mnemo-go/pkg/storage/sqlite"
)

// Client is the main entry point for memory operations.
//
// It coordinates the vector store, the optional graph store, the LLM and
// embedding providers, the history sink, and the cache layer. Vector and
// graph memory run side by side: mutations and queries fan out to both, and
// each half degrades independently when its backend fails.
//
// Create a client with NewClient, and always call Close when done.
type Client struct {
	config   *Config
	storage  storage.VectorStore
	dual     *dualwrite.Store
	llm      llm.Provider
	embedder embedder.Provider
	graphMem *graph.Memory
	history  history.Store
	cache    *cache.Layer

	factExtractor *intelligence.FactExtractor
	decisionMaker *intelligence.DecisionMaker
	ingestGate    *intelligence.SmartIngestGate
	retention     *intelligence.RetentionManager
}

// NewClient creates a new memory client with the given configuration.
//
// The function initializes:
//   - Vector store backend (SQLite, PostgreSQL, or OceanBase), optionally
//     wrapped in a dual-write migration store
//   - LLM provider (OpenAI, DeepSeek, or Anthropic)
//   - Embedding provider, wrapped with the cache layer when Redis is configured
//   - Graph memory (Neo4j or SQLite) when configured
//   - History sink (SQLite or PostgreSQL)
//   - Ingest gate and retention manager
//
// Parameters:
//   - config: The configuration. Must pass Validate().
//
// Returns a Client instance, or an error if any component fails to initialize.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, NewMemoryError("NewClient", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := initStorage(config.VectorStore)
	if err != nil {
		return nil, err
	}

	var dual *dualwrite.Store
	if config.DualWrite != nil {
		secondary, err := initStorage(config.DualWrite.Secondary)
		if err != nil {
			store.Close()
			return nil, err
		}
		dual, err = dualwrite.New(store, secondary, config.DualWrite.Mode)
		if err != nil {
			store.Close()
			secondary.Close()
			return nil, err
		}
		store = dual
	}

	llmProvider, err := initLLM(config.LLM)
	if err != nil {
		store.Close()
		return nil, err
	}

	embedProvider, err := initEmbedder(config.Embedder)
	if err != nil {
		store.Close()
		llmProvider.Close()
		return nil, err
	}

	cacheLayer, err := initCache(config.Cache)
	if err != nil {
		// Cache is an accelerator, not a dependency. A dead Redis must
		// not keep the client from starting.
		log.Printf("cache unavailable, continuing without it: %v", err)
		cacheLayer = nil
	}
	cachedEmbedder := embedder.NewCached(embedProvider, cacheLayer)

	client := &Client{
		config:   config,
		storage:  store,
		dual:     dual,
		llm:      llmProvider,
		embedder: cachedEmbedder,
		cache:    cacheLayer,
	}

	if config.GraphStore != nil && config.GraphStore.Provider != "" {
		graphMem, err := initGraph(config.GraphStore, llmProvider, cachedEmbedder)
		if err != nil {
			client.Close()
			return nil, err
		}
		client.graphMem = graphMem
	}

	historyStore, err := initHistory(config.History)
	if err != nil {
		client.Close()
		return nil, err
	}
	client.history = historyStore

	client.initIntelligence(config)

	return client, nil
}

// Components bundles pre-built backends for assembling a client directly,
// bypassing the provider dispatch in NewClient. Useful for embedding custom
// provider implementations.
type Components struct {
	// Storage is the vector store (required). A dualwrite.Store is
	// recognized and exposed through DualWriteStats.
	Storage storage.VectorStore

	// LLM is the language model provider (required).
	LLM llm.Provider

	// Embedder is the embedding provider (required). It is wrapped with
	// the cache front the same way NewClient wraps it.
	Embedder embedder.Provider

	// Graph is the optional graph memory.
	Graph *graph.Memory

	// History is the optional audit log sink.
	History history.Store

	// Cache is the optional cache layer.
	Cache *cache.Layer
}

// NewClientWithComponents assembles a client from pre-built backends.
//
// Parameters:
//   - config: Optional configuration; only Ingest and Retention are read
//   - comp: The backends to assemble
//
// Returns the client, or ErrInvalidConfig when a required component is
// missing.
func NewClientWithComponents(config *Config, comp Components) (*Client, error) {
	if comp.Storage == nil || comp.LLM == nil || comp.Embedder == nil {
		return nil, NewMemoryError("NewClientWithComponents", ErrInvalidConfig)
	}
	if config == nil {
		config = &Config{}
	}

	client := &Client{
		config:   config,
		storage:  comp.Storage,
		llm:      comp.LLM,
		embedder: embedder.NewCached(comp.Embedder, comp.Cache),
		graphMem: comp.Graph,
		history:  comp.History,
		cache:    comp.Cache,
	}
	if dual, ok := comp.Storage.(*dualwrite.Store); ok {
		client.dual = dual
	}

	client.initIntelligence(config)

	return client, nil
}

// initIntelligence wires the retention manager, ingest gate, fact
// extractor, and decision maker from the config defaults.
func (c *Client) initIntelligence(config *Config) {
	decayRate, reinforcement := 0.1, 0.3
	if config.Retention != nil {
		if config.Retention.DecayRate > 0 {
			decayRate = config.Retention.DecayRate
		}
		if config.Retention.ReinforcementFactor > 0 {
			reinforcement = config.Retention.ReinforcementFactor
		}
	}
	c.retention = intelligence.NewRetentionManager(decayRate, reinforcement)

	ingestCfg := intelligence.DefaultIngestConfig()
	if config.Ingest != nil {
		ingestCfg = *config.Ingest
	}
	c.ingestGate = intelligence.NewSmartIngestGate(c, ingestCfg)

	c.factExtractor = intelligence.NewFactExtractor(c.llm, "")
	c.decisionMaker = intelligence.NewDecisionMaker(c.llm)
}

// Add stores new memories extracted from conversation messages.
//
// By default the messages go through the intelligent pipeline: facts are
// extracted with the LLM, compared against similar existing memories, and a
// merge decision (ADD, UPDATE, DELETE, NONE) is made per fact. With
// WithInfer(false) the raw conversation text is stored as a single memory
// instead.
//
// When graph memory is configured, entities and relationships are extracted
// from the same messages concurrently with the vector pipeline. A graph
// failure never fails the call; the vector results are returned without
// relations.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - messages: The conversation messages to remember
//   - opts: Scope and behavior options. At least one of WithUserID,
//     WithAgentID, or WithRunID is required.
//
// Returns the actions taken and any extracted relations, or an error.
func (c *Client) Add(ctx context.Context, messages []llm.Message, opts ...AddOption) (*AddResult, error) {
	options := applyAddOptions(opts)
	if options.UserID == "" && options.AgentID == "" && options.RunID == "" {
		return nil, NewMemoryError("Add", ErrNoScope)
	}
	if len(messages) == 0 {
		return &AddResult{}, nil
	}

	var (
		wg        sync.WaitGroup
		results   []ActionResult
		vectorErr error
		relations []*graph.Relation
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if options.Infer {
			results, vectorErr = c.intelligentAdd(ctx, messages, options)
		} else {
			results, vectorErr = c.simpleAdd(ctx, messages, options)
		}
	}()

	if c.graphMem != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := messagesToText(messages)
			if data == "" {
				return
			}
			graphResult, err := c.graphMem.Add(ctx, data, graphScope(options.UserID, options.AgentID, options.RunID))
			if err != nil {
				log.Printf("graph add failed: %v", err)
				return
			}
			relations = graphResult.AddedRelations
		}()
	}

	wg.Wait()

	// The graph half may have written even when the vector half failed, so
	// cached snapshots are stale either way.
	c.cache.InvalidateUser(ctx, options.UserID)

	if vectorErr != nil {
		return nil, vectorErr
	}

	return &AddResult{Results: results, Relations: relations}, nil
}

// Search finds memories similar to the query.
//
// The query is embedded and matched against the vector store; when graph
// memory is configured, related entities are searched concurrently. Results
// are rescored by current retention strength so stale memories rank below
// fresh ones with the same similarity.
//
// Vector results are served from the cache when a recent identical search is
// available. A transient provider failure returns an empty result set rather
// than an error.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - query: The search query text
//   - opts: Scope and search options. At least one scoping option is required.
//
// Returns matching memories and relations.
func (c *Client) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResult, error) {
	options := applySearchOptions(opts)
	if options.UserID == "" && options.AgentID == "" && options.RunID == "" {
		return nil, NewMemoryError("Search", ErrNoScope)
	}

	var (
		wg        sync.WaitGroup
		memories  []*Memory
		relations []*graph.Relation
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		memories = c.vectorSearch(ctx, query, options)
	}()

	if c.graphMem != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relations = c.graphSearch(ctx, query, options)
		}()
	}

	wg.Wait()

	return &SearchResult{Results: memories, Relations: relations}, nil
}

// graphSearch runs the graph half of a search behind the cache. Graph
// queries cost an LLM entity-extraction call, so hits here save more than
// on the vector side.
func (c *Client) graphSearch(ctx context.Context, query string, options *SearchOptions) []*graph.Relation {
	filters := map[string]interface{}{
		"agent_id": options.AgentID,
		"run_id":   options.RunID,
		"limit":    options.Limit,
	}

	var cached []*graph.Relation
	if c.cache.GetSearch(ctx, options.UserID, "graph", query, filters, &cached) {
		return cached
	}

	relations, err := c.graphMem.Search(ctx, query, graphScope(options.UserID, options.AgentID, options.RunID), options.Limit)
	if err != nil {
		log.Printf("graph search failed: %v", err)
		return nil
	}

	c.cache.SetSearch(ctx, options.UserID, "graph", query, filters, relations)
	return relations
}

// vectorSearch runs the cached, retention-rescored vector search. Failures
// are logged and produce an empty result set.
func (c *Client) vectorSearch(ctx context.Context, query string, options *SearchOptions) []*Memory {
	filters := map[string]interface{}{
		"agent_id": options.AgentID,
		"run_id":   options.RunID,
		"limit":    options.Limit,
	}
	for k, v := range options.Filters {
		filters[k] = v
	}

	var cached []*Memory
	if c.cache.GetSearch(ctx, options.UserID, "vector", query, filters, &cached) {
		return cached
	}

	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("search embedding failed: %v", err)
		return nil
	}

	stored, err := c.storage.Search(ctx, embedding, &storage.SearchOptions{
		UserID:   options.UserID,
		AgentID:  options.AgentID,
		RunID:    options.RunID,
		Limit:    options.Limit,
		MinScore: options.MinScore,
		Filters:  options.Filters,
	})
	if err != nil {
		log.Printf("vector search failed: %v", err)
		return nil
	}

	memories := fromStorageMemories(stored)
	for _, m := range memories {
		m.Score *= c.retention.CurrentRetention(m.RetentionStrength, m.UpdatedAt)
	}

	c.cache.SetSearch(ctx, options.UserID, "vector", query, filters, memories)
	return memories
}

// Get retrieves a single memory by ID.
//
// A successful Get counts as a recall: the memory's retention strength is
// reinforced (best effort, never failing the read).
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - memoryID: The memory ID
//   - opts: Optional scope restriction (WithUserIDForGet, WithAgentIDForGet)
//
// Returns the memory, or ErrNotFound if it does not exist in scope.
func (c *Client) Get(ctx context.Context, memoryID string, opts ...GetOption) (*Memory, error) {
	options := applyGetOptions(opts)

	stored, err := c.storage.Get(ctx, memoryID, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil {
		return nil, NewMemoryError("Get", storageErr(err))
	}

	reinforced := c.retention.Reinforce(stored.RetentionStrength)
	if err := c.storage.UpdateRetention(ctx, stored.ID, reinforced); err != nil {
		log.Printf("retention reinforce failed for %s: %v", stored.ID, err)
	} else {
		stored.RetentionStrength = reinforced
	}

	return fromStorageMemory(stored), nil
}

// GetAll retrieves all memories in a scope.
//
// When only UserID and AgentID are set and default pagination is used, the
// result is served from the snapshot cache when available.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - opts: Scope and pagination options. At least one scoping option is required.
//
// Returns memories and, when graph memory is configured, all relations in scope.
func (c *Client) GetAll(ctx context.Context, opts ...GetAllOption) (*SearchResult, error) {
	options := applyGetAllOptions(opts)
	if options.UserID == "" && options.AgentID == "" && options.RunID == "" {
		return nil, NewMemoryError("GetAll", ErrNoScope)
	}

	snapshotable := options.RunID == "" && options.Offset == 0

	if snapshotable {
		var cached SearchResult
		if c.cache.GetSnapshot(ctx, options.UserID, options.AgentID, &cached) {
			return &cached, nil
		}
	}

	var (
		wg        sync.WaitGroup
		memories  []*Memory
		relations []*graph.Relation
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		stored, err := c.storage.GetAll(ctx, &storage.GetAllOptions{
			UserID:  options.UserID,
			AgentID: options.AgentID,
			RunID:   options.RunID,
			Limit:   options.Limit,
			Offset:  options.Offset,
		})
		if err != nil {
			log.Printf("get all failed: %v", err)
			return
		}
		memories = fromStorageMemories(stored)
	}()

	if c.graphMem != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rels, err := c.graphMem.GetAll(ctx, graphScope(options.UserID, options.AgentID, options.RunID), options.Limit)
			if err != nil {
				log.Printf("graph get all failed: %v", err)
				return
			}
			relations = rels
		}()
	}

	wg.Wait()

	result := &SearchResult{Results: memories, Relations: relations}
	if snapshotable {
		c.cache.SetSnapshot(ctx, options.UserID, options.AgentID, result)
	}
	return result, nil
}

// Update replaces the content of an existing memory.
//
// The new content is re-embedded, the memory's UpdatedAt advances while
// CreatedAt is preserved, a history entry records the old and new content,
// and the user's cached results are invalidated.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - memoryID: The memory ID
//   - content: The new content
//   - opts: Optional scope restriction
//
// Returns the updated memory, or ErrNotFound.
func (c *Client) Update(ctx context.Context, memoryID, content string, opts ...UpdateOption) (*Memory, error) {
	options := applyUpdateOptions(opts)

	old, err := c.storage.Get(ctx, memoryID, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil {
		return nil, NewMemoryError("Update", storageErr(err))
	}

	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, NewMemoryError("Update", fmt.Errorf("%w: %v", ErrProvider, err))
	}

	updated, err := c.storage.Update(ctx, memoryID, content, embedding, &storage.UpdateOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil {
		return nil, NewMemoryError("Update", storageErr(err))
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  memoryID,
		OldMemory: old.Content,
		NewMemory: content,
		Event:     history.EventUpdate,
		CreatedAt: old.CreatedAt,
		UpdatedAt: time.Now(),
		ActorID:   old.ActorID,
		Role:      old.Role,
	})

	c.cache.InvalidateUser(ctx, userScope(options.UserID, old.UserID))

	return fromStorageMemory(updated), nil
}

// Delete removes a memory by ID.
//
// A terminal history entry flagged is_deleted is appended; earlier entries
// for the memory stay untouched.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - memoryID: The memory ID
//   - opts: Optional scope restriction
//
// Returns ErrNotFound if the memory does not exist in scope.
func (c *Client) Delete(ctx context.Context, memoryID string, opts ...DeleteOption) error {
	options := applyDeleteOptions(opts)

	old, err := c.storage.Get(ctx, memoryID, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil {
		return NewMemoryError("Delete", storageErr(err))
	}

	if err := c.storage.Delete(ctx, memoryID, &storage.DeleteOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	}); err != nil {
		return NewMemoryError("Delete", storageErr(err))
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  memoryID,
		OldMemory: old.Content,
		Event:     history.EventDelete,
		CreatedAt: old.CreatedAt,
		UpdatedAt: time.Now(),
		IsDeleted: true,
		ActorID:   old.ActorID,
		Role:      old.Role,
	})

	c.cache.InvalidateUser(ctx, userScope(options.UserID, old.UserID))

	return nil
}

// DeleteAll removes all memories in a scope.
//
// An unscoped DeleteAll is refused with ErrNoScope; wiping the whole store
// requires going through the storage backend directly.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - opts: Scope options. At least one of WithUserIDForDeleteAll,
//     WithAgentIDForDeleteAll, or WithRunIDForDeleteAll is required.
//
// Returns an error if deletion fails.
func (c *Client) DeleteAll(ctx context.Context, opts ...DeleteAllOption) error {
	options := applyDeleteAllOptions(opts)
	if options.UserID == "" && options.AgentID == "" && options.RunID == "" {
		return NewMemoryError("DeleteAll", ErrNoScope)
	}

	if err := c.storage.DeleteAll(ctx, &storage.DeleteAllOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
		RunID:   options.RunID,
	}); err != nil {
		return NewMemoryError("DeleteAll", err)
	}

	if c.graphMem != nil {
		if err := c.graphMem.DeleteAll(ctx, graphScope(options.UserID, options.AgentID, options.RunID)); err != nil {
			log.Printf("graph delete all failed: %v", err)
		}
	}

	c.cache.InvalidateUser(ctx, options.UserID)

	return nil
}

// History returns the full mutation history of a memory, oldest first.
//
// Deleted memories keep their history; the terminal entry carries the
// is_deleted flag.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - memoryID: The memory ID
//
// Returns the history entries.
func (c *Client) History(ctx context.Context, memoryID string) ([]*history.Entry, error) {
	if c.history == nil {
		return nil, nil
	}
	entries, err := c.history.List(ctx, memoryID)
	if err != nil {
		return nil, NewMemoryError("History", err)
	}
	return entries, nil
}

// Supersessions returns the supersession links referencing a memory on
// either side, oldest first. A link records which memory displaced which,
// the contradiction type, and the detection confidence.
//
// Parameters:
//   - ctx: Context for the operation
//   - memoryID: The memory to look up
//
// Returns the supersession rows, or nil if no history sink is configured.
func (c *Client) Supersessions(ctx context.Context, memoryID string) ([]*history.Supersession, error) {
	if c.history == nil {
		return nil, nil
	}
	supersessions, err := c.history.ListSupersessions(ctx, memoryID)
	if err != nil {
		return nil, NewMemoryError("Supersessions", err)
	}
	return supersessions, nil
}

// SearchSimilar finds stored memories similar to the query text.
//
// It implements intelligence.MemorySearcher for the ingest gate, bypassing
// the search cache so the gate always sees fresh results.
func (c *Client) SearchSimilar(ctx context.Context, query, userID, agentID string, limit int) ([]*storage.Memory, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.storage.Search(ctx, embedding, &storage.SearchOptions{
		UserID:  userID,
		AgentID: agentID,
		Limit:   limit,
	})
}

// DualWriteStats returns migration counters when dual-write is configured.
// The second return value is false when no migration is active.
func (c *Client) DualWriteStats() (dualwrite.Stats, bool) {
	if c.dual == nil {
		return dualwrite.Stats{}, false
	}
	return c.dual.Stats(), true
}

// SetDualWriteMode switches the migration routing mode at runtime.
// Returns an error when no migration is configured or the mode is unknown.
func (c *Client) SetDualWriteMode(mode dualwrite.Mode) error {
	if c.dual == nil {
		return NewMemoryError("SetDualWriteMode", ErrInvalidConfig)
	}
	return c.dual.SetMode(mode)
}

// CacheStats returns cache hit/miss counters. Zero counters are returned
// when caching is disabled.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Close closes the client and releases all resources.
//
// Always call Close when done with the client, typically with defer:
//
//	client, err := core.NewClient(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// Returns the first error encountered while closing components.
func (c *Client) Close() error {
	var errs []error

	if c.storage != nil {
		if err := c.storage.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.graphMem != nil {
		if err := c.graphMem.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.history != nil {
		if err := c.history.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0] // Return the first error
	}

	return nil
}

// recordHistory appends a history entry. History is best effort: a failing
// sink is logged and never fails the memory operation.
func (c *Client) recordHistory(ctx context.Context, entry *history.Entry) {
	if c.history == nil {
		return
	}
	if err := c.history.Add(ctx, entry); err != nil {
		log.Printf("history write failed for %s (%s): %v", entry.MemoryID, entry.Event, err)
	}
}

// recordSupersession writes a supersession audit row. Best-effort like all
// history writes.
func (c *Client) recordSupersession(ctx context.Context, sup *history.Supersession) {
	if c.history == nil {
		return
	}
	if err := c.history.RecordSupersession(ctx, sup); err != nil {
		log.Printf("supersession write failed for %s -> %s: %v", sup.OldMemoryID, sup.NewMemoryID, err)
	}
}

// graphScope builds the graph scope for the given identifiers.
func graphScope(userID, agentID, runID string) graph.Scope {
	return graph.Scope{UserID: userID, AgentID: agentID, RunID: runID}
}

// userScope prefers the explicit option scope, falling back to the
// memory's own owner for cache invalidation.
func userScope(optionUserID, memoryUserID string) string {
	if optionUserID != "" {
		return optionUserID
	}
	return memoryUserID
}

// storageErr translates storage sentinels into this package's error classes.
func storageErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// initStorage initializes the storage backend.
func initStorage(cfg VectorStoreConfig) (storage.VectorStore, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:             configString(cfg.Config, "db_path"),
			CollectionName:     configString(cfg.Config, "collection_name"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:               configString(cfg.Config, "host"),
			Port:               configInt(cfg.Config, "port"),
			User:               configString(cfg.Config, "user"),
			Password:           configString(cfg.Config, "password"),
			DBName:             configString(cfg.Config, "db_name"),
			CollectionName:     configString(cfg.Config, "collection_name"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims"),
			SSLMode:            configString(cfg.Config, "ssl_mode"),
		})
	case "oceanbase":
		return oceanbaseStore.NewClient(&oceanbaseStore.Config{
			Host:               configString(cfg.Config, "host"),
			Port:               configInt(cfg.Config, "port"),
			User:               configString(cfg.Config, "user"),
			Password:           configString(cfg.Config, "password"),
			DBName:             configString(cfg.Config, "db_name"),
			CollectionName:     configString(cfg.Config, "collection_name"),
			EmbeddingModelDims: configInt(cfg.Config, "embedding_model_dims"),
		})
	default:
		return nil, NewMemoryError("initStorage", ErrInvalidConfig)
	}
}

// initLLM initializes the LLM provider.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "deepseek":
		return deepseekLLM.NewClient(&deepseekLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "anthropic":
		return anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, NewMemoryError("initLLM", ErrInvalidConfig)
	}
}

// initEmbedder initializes the embedder provider.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig)
	}
}

// initGraph initializes the graph memory pipeline.
func initGraph(cfg *GraphStoreConfig, llmProvider llm.Provider, embedProvider embedder.Provider) (*graph.Memory, error) {
	var store graph.Store
	var err error

	switch cfg.Provider {
	case "neo4j":
		store, err = neo4j.NewStore(context.Background(), &neo4j.Config{
			URI:      cfg.URI,
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		})
	case "sqlite":
		store, err = sqlitegraph.NewStore(&sqlitegraph.Config{
			DBPath: cfg.DBPath,
		})
	default:
		return nil, NewMemoryError("initGraph", ErrInvalidConfig)
	}
	if err != nil {
		return nil, err
	}

	return graph.NewMemory(&graph.Config{
		LLM:          llmProvider,
		Embedder:     embedProvider,
		Store:        store,
		Threshold:    cfg.Threshold,
		CustomPrompt: cfg.CustomPrompt,
	})
}

// initHistory initializes the history sink. A nil config defaults to a
// SQLite sink next to the vector store.
func initHistory(cfg *HistoryConfig) (history.Store, error) {
	if cfg == nil {
		cfg = &HistoryConfig{Provider: "sqlite", DBPath: "./mnemo_history.db"}
	}

	switch cfg.Provider {
	case "sqlite":
		dbPath := cfg.DBPath
		if dbPath == "" {
			dbPath = "./mnemo_history.db"
		}
		return sqliteHistory.NewStore(&sqliteHistory.Config{
			DBPath: dbPath,
			NodeID: cfg.NodeID,
		})
	case "postgres":
		return postgresHistory.NewStore(&postgresHistory.Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			DBName:   cfg.DBName,
			SSLMode:  cfg.SSLMode,
			NodeID:   cfg.NodeID,
		})
	default:
		return nil, NewMemoryError("initHistory", ErrInvalidConfig)
	}
}

// initCache initializes the Redis-backed cache layer. A nil config disables
// caching.
func initCache(cfg *CacheConfig) (*cache.Layer, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, nil
	}

	backend, err := cache.NewRedisBackend(context.Background(), &cache.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, err
	}

	layerCfg := cache.Config{}
	if cfg.EmbeddingTTLHours > 0 {
		layerCfg.EmbeddingTTL = time.Duration(cfg.EmbeddingTTLHours) * time.Hour
	}
	if cfg.SearchTTLMinutes > 0 {
		layerCfg.SearchTTL = time.Duration(cfg.SearchTTLMinutes) * time.Minute
	}
	if cfg.SnapshotTTLMinutes > 0 {
		layerCfg.SnapshotTTL = time.Duration(cfg.SnapshotTTLMinutes) * time.Minute
	}

	return cache.NewLayer(backend, layerCfg), nil
}

// configString reads a string value from a provider config map.
func configString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// configInt reads an integer value from a provider config map. JSON-decoded
// maps carry numbers as float64, so both forms are accepted.
func configInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
