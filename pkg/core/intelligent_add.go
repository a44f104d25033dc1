package core

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-labs/mnemo-go/pkg/history"
	"github.com/mnemo-labs/mnemo-go/pkg/intelligence"
	"github.com/mnemo-labs/mnemo-go/pkg/llm"
	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// similarPerFact is how many existing memories are retrieved per extracted
// fact before the merge decision.
const similarPerFact = 5

// maxExistingForDecision caps how many existing memories are shown to the
// decision prompt.
const maxExistingForDecision = 10

// intelligentAdd runs the LLM-driven memory pipeline:
//
//  1. Extract discrete facts from the conversation
//  2. Retrieve similar existing memories per fact
//  3. Let the LLM decide ADD / UPDATE / DELETE / NONE per fact
//  4. Apply each action independently
//  5. Validate freshly added memories through the ingest gate
//
// Extraction or decision failures fall back to storing the raw conversation,
// so user data is never silently dropped. Individual action failures are
// logged and skipped; one bad action never aborts the batch.
func (c *Client) intelligentAdd(ctx context.Context, messages []llm.Message, options *AddOptions) ([]ActionResult, error) {
	facts, err := c.factExtractor.Extract(ctx, messages)
	if err != nil {
		log.Printf("fact extraction failed, falling back to simple add: %v", err)
		return c.simpleAdd(ctx, messages, options)
	}
	if len(facts) == 0 {
		log.Printf("no facts extracted from %d messages", len(messages))
		return []ActionResult{}, nil
	}
	log.Printf("extracted %d facts", len(facts))

	existing, factEmbeddings := c.retrieveSimilar(ctx, facts, options)

	actions, idMap, err := c.decisionMaker.Decide(ctx, facts, existing)
	if err != nil {
		log.Printf("memory decision failed, falling back to simple add: %v", err)
		return c.simpleAdd(ctx, messages, options)
	}

	results := make([]ActionResult, 0, len(actions))
	var added []*storage.Memory

	for _, action := range actions {
		switch action.Event {
		case "ADD":
			result, mem := c.executeAdd(ctx, action.Content(), factEmbeddings, options)
			if result != nil {
				results = append(results, *result)
			}
			if mem != nil {
				added = append(added, mem)
			}

		case "UPDATE":
			realID, ok := idMap.Resolve(action.ID)
			if !ok {
				// The model referenced a memory it was never shown.
				// Treat the content as new instead of guessing.
				log.Printf("unknown memory id %q in UPDATE, adding instead", action.ID)
				result, mem := c.executeAdd(ctx, action.Content(), factEmbeddings, options)
				if result != nil {
					results = append(results, *result)
				}
				if mem != nil {
					added = append(added, mem)
				}
				continue
			}
			if result := c.executeUpdate(ctx, realID, action.Content(), options); result != nil {
				results = append(results, *result)
			}

		case "DELETE":
			realID, ok := idMap.Resolve(action.ID)
			if !ok {
				log.Printf("unknown memory id %q in DELETE, skipping", action.ID)
				continue
			}
			if result := c.executeDelete(ctx, realID, options); result != nil {
				results = append(results, *result)
			}

		case "NONE":
			results = append(results, ActionResult{
				Memory: action.Content(),
				Event:  "NONE",
			})
		}
	}

	results = c.validateAdded(ctx, results, added, options)

	return results, nil
}

// retrieveSimilar embeds each fact and collects similar existing memories,
// deduplicated by id and capped for the decision prompt. The fact embeddings
// are returned so an ADD can reuse them without a second provider call.
func (c *Client) retrieveSimilar(ctx context.Context, facts []string, options *AddOptions) ([]*storage.Memory, map[string][]float64) {
	var existing []*storage.Memory
	seen := make(map[string]bool)
	factEmbeddings := make(map[string][]float64, len(facts))

	for _, fact := range facts {
		embedding, err := c.embedder.Embed(ctx, fact)
		if err != nil {
			log.Printf("embedding failed for fact %q: %v", truncate(fact, 50), err)
			continue
		}
		factEmbeddings[fact] = embedding

		similar, err := c.storage.Search(ctx, embedding, &storage.SearchOptions{
			UserID:  options.UserID,
			AgentID: options.AgentID,
			RunID:   options.RunID,
			Limit:   similarPerFact,
		})
		if err != nil {
			log.Printf("similarity search failed for fact %q: %v", truncate(fact, 50), err)
			continue
		}

		for _, mem := range similar {
			if seen[mem.ID] || len(existing) >= maxExistingForDecision {
				continue
			}
			seen[mem.ID] = true
			existing = append(existing, mem)
		}
	}

	return existing, factEmbeddings
}

// executeAdd inserts a new memory, skipping content that already exists in
// scope. Returns the action result and, for a real insert, the stored memory.
func (c *Client) executeAdd(ctx context.Context, content string, factEmbeddings map[string][]float64, options *AddOptions) (*ActionResult, *storage.Memory) {
	if content == "" {
		return nil, nil
	}

	hash := ContentHash(content)
	if dup, err := c.storage.GetByHash(ctx, hash, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	}); err == nil && dup != nil {
		log.Printf("duplicate content in scope, keeping %s", dup.ID)
		return &ActionResult{ID: dup.ID, Memory: content, Event: "NONE"}, nil
	}

	embedding, ok := factEmbeddings[content]
	if !ok {
		var err error
		embedding, err = c.embedder.Embed(ctx, content)
		if err != nil {
			log.Printf("embedding failed for %q: %v", truncate(content, 50), err)
			return nil, nil
		}
	}

	now := time.Now()
	mem := &storage.Memory{
		ID:                uuid.NewString(),
		UserID:            options.UserID,
		AgentID:           options.AgentID,
		RunID:             options.RunID,
		ActorID:           options.ActorID,
		Role:              options.Role,
		IsKey:             options.IsKey,
		Hash:              hash,
		Content:           content,
		Embedding:         embedding,
		Metadata:          copyMetadata(options.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
		RetentionStrength: intelligence.DefaultInitialRetention,
	}

	if err := c.storage.Insert(ctx, mem); err != nil {
		log.Printf("insert failed for %q: %v", truncate(content, 50), err)
		return nil, nil
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  mem.ID,
		NewMemory: content,
		Event:     history.EventAdd,
		CreatedAt: now,
		UpdatedAt: now,
		ActorID:   options.ActorID,
		Role:      options.Role,
	})

	return &ActionResult{ID: mem.ID, Memory: content, Event: "ADD"}, mem
}

// executeUpdate replaces the content of an existing memory and records the
// previous content.
func (c *Client) executeUpdate(ctx context.Context, memoryID, content string, options *AddOptions) *ActionResult {
	old, err := c.storage.Get(ctx, memoryID, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil || old == nil {
		log.Printf("update target %s not found: %v", memoryID, err)
		return nil
	}
	if old.Content == content {
		return &ActionResult{ID: memoryID, Memory: content, Event: "NONE"}
	}

	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		log.Printf("embedding failed for update of %s: %v", memoryID, err)
		return nil
	}

	if _, err := c.storage.Update(ctx, memoryID, content, embedding, &storage.UpdateOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	}); err != nil {
		log.Printf("update failed for %s: %v", memoryID, err)
		return nil
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  memoryID,
		OldMemory: old.Content,
		NewMemory: content,
		Event:     history.EventUpdate,
		CreatedAt: old.CreatedAt,
		UpdatedAt: time.Now(),
		ActorID:   options.ActorID,
		Role:      options.Role,
	})

	return &ActionResult{
		ID:             memoryID,
		Memory:         content,
		Event:          "UPDATE",
		PreviousMemory: old.Content,
	}
}

// executeDelete removes a contradicted memory and appends the terminal
// history entry.
func (c *Client) executeDelete(ctx context.Context, memoryID string, options *AddOptions) *ActionResult {
	old, err := c.storage.Get(ctx, memoryID, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	})
	if err != nil || old == nil {
		log.Printf("delete target %s not found: %v", memoryID, err)
		return nil
	}

	if err := c.storage.Delete(ctx, memoryID, &storage.DeleteOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	}); err != nil {
		log.Printf("delete failed for %s: %v", memoryID, err)
		return nil
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  memoryID,
		OldMemory: old.Content,
		Event:     history.EventDelete,
		CreatedAt: old.CreatedAt,
		UpdatedAt: time.Now(),
		IsDeleted: true,
		ActorID:   options.ActorID,
		Role:      options.Role,
	})

	return &ActionResult{ID: memoryID, Memory: old.Content, Event: "DELETE"}
}

// validateAdded runs the ingest gate over freshly added memories. Confirmed
// near-duplicates are deleted again and their results downgraded to NONE;
// superseded existing memories get their retention demoted so they decay out.
func (c *Client) validateAdded(ctx context.Context, results []ActionResult, added []*storage.Memory, options *AddOptions) []ActionResult {
	if c.ingestGate == nil || len(added) == 0 {
		return results
	}

	validation, err := c.ingestGate.ValidateBatch(ctx, added, options.UserID, options.AgentID)
	if err != nil {
		log.Printf("ingest validation failed: %v", err)
		return results
	}

	removed := make(map[string]bool, len(validation.Duplicates))
	for _, id := range validation.Duplicates {
		if err := c.storage.Delete(ctx, id, &storage.DeleteOptions{
			UserID:  options.UserID,
			AgentID: options.AgentID,
		}); err != nil {
			log.Printf("duplicate cleanup failed for %s: %v", id, err)
			continue
		}
		removed[id] = true
		c.recordHistory(ctx, &history.Entry{
			MemoryID:  id,
			Event:     history.EventDelete,
			UpdatedAt: time.Now(),
			IsDeleted: true,
			ActorID:   options.ActorID,
			Role:      options.Role,
		})
	}

	for _, sup := range validation.Supersessions {
		old, err := c.storage.Get(ctx, sup.OldMemoryID, &storage.GetOptions{
			UserID:  options.UserID,
			AgentID: options.AgentID,
		})
		if err != nil || old == nil {
			continue
		}
		demoted := c.retention.Demote(old.RetentionStrength)
		if err := c.storage.UpdateRetention(ctx, sup.OldMemoryID, demoted); err != nil {
			log.Printf("retention demotion failed for %s (superseded by %s): %v", sup.OldMemoryID, sup.NewMemoryID, err)
		}
		c.recordSupersession(ctx, &history.Supersession{
			OldMemoryID: sup.OldMemoryID,
			NewMemoryID: sup.NewMemoryID,
			Reason:      sup.Reason,
			Confidence:  sup.Confidence,
		})
	}

	if len(removed) == 0 {
		return results
	}

	for i := range results {
		if removed[results[i].ID] {
			results[i].Event = "NONE"
		}
	}
	return results
}

// simpleAdd stores the conversation as a single memory without any LLM
// processing. Used with WithInfer(false) and as the fallback when the
// intelligent pipeline's LLM calls fail.
func (c *Client) simpleAdd(ctx context.Context, messages []llm.Message, options *AddOptions) ([]ActionResult, error) {
	content := messagesToText(messages)
	if content == "" {
		return []ActionResult{}, nil
	}

	hash := ContentHash(content)
	if dup, err := c.storage.GetByHash(ctx, hash, &storage.GetOptions{
		UserID:  options.UserID,
		AgentID: options.AgentID,
	}); err == nil && dup != nil {
		return []ActionResult{{ID: dup.ID, Memory: content, Event: "NONE"}}, nil
	}

	embedding, err := c.embedder.Embed(ctx, content)
	if err != nil {
		return nil, NewMemoryError("Add", fmt.Errorf("%w: %v", ErrProvider, err))
	}

	now := time.Now()
	mem := &storage.Memory{
		ID:                uuid.NewString(),
		UserID:            options.UserID,
		AgentID:           options.AgentID,
		RunID:             options.RunID,
		ActorID:           options.ActorID,
		Role:              options.Role,
		IsKey:             options.IsKey,
		Hash:              hash,
		Content:           content,
		Embedding:         embedding,
		Metadata:          copyMetadata(options.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
		RetentionStrength: intelligence.DefaultInitialRetention,
	}

	if err := c.storage.Insert(ctx, mem); err != nil {
		return nil, NewMemoryError("Add", err)
	}

	c.recordHistory(ctx, &history.Entry{
		MemoryID:  mem.ID,
		NewMemory: content,
		Event:     history.EventAdd,
		CreatedAt: now,
		UpdatedAt: now,
		ActorID:   options.ActorID,
		Role:      options.Role,
	})

	return []ActionResult{{ID: mem.ID, Memory: content, Event: "ADD"}}, nil
}
