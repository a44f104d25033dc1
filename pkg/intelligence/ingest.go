package intelligence

import (
	"context"
	"fmt"
	"log"

	"github.com/mnemo-labs/mnemo-go/pkg/storage"
)

// IngestDecision is the outcome of the ingest gate for one piece of content.
type IngestDecision string

const (
	// DecisionCreate means the content is novel and should be kept as-is.
	DecisionCreate IngestDecision = "create"

	// DecisionSkip means the content duplicates an existing memory and the
	// newly written copy should be removed.
	DecisionSkip IngestDecision = "skip"

	// DecisionUpdate means the content elaborates an existing memory.
	DecisionUpdate IngestDecision = "update"

	// DecisionSupersede means the content contradicts an existing memory,
	// which should be demoted in favor of the new one.
	DecisionSupersede IngestDecision = "supersede"
)

// IngestConfig holds the similarity thresholds used by the ingest gate.
// The defaults are hand-tuned operating points; calibrate them per
// deployment rather than treating them as universal constants.
type IngestConfig struct {
	// SkipThreshold is the semantic similarity above which content is
	// treated as a duplicate. Default: 0.95.
	SkipThreshold float64

	// SkipOverlapThreshold is the word-overlap similarity above which
	// content is treated as a duplicate regardless of embedding score.
	// Default: 0.9.
	SkipOverlapThreshold float64

	// UpdateThreshold is the similarity above which content is considered
	// an elaboration of an existing memory. Default: 0.75.
	UpdateThreshold float64

	// SupersedeThreshold is the similarity above which a confident
	// contradiction triggers supersession. Default: 0.6.
	SupersedeThreshold float64

	// SupersedeConfidence is the minimum contradiction confidence required
	// in the SupersedeThreshold band. Default: 0.7.
	SupersedeConfidence float64
}

// DefaultIngestConfig returns the default ingest gate thresholds.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		SkipThreshold:        0.95,
		SkipOverlapThreshold: 0.9,
		UpdateThreshold:      0.75,
		SupersedeThreshold:   0.6,
		SupersedeConfidence:  0.7,
	}
}

// MemorySearcher finds memories semantically similar to a query. It is
// implemented by the core client so the gate can reuse its embedding and
// storage pipeline without depending on it.
type MemorySearcher interface {
	SearchSimilar(ctx context.Context, query, userID, agentID string, limit int) ([]*storage.Memory, error)
}

// SmartIngestGate runs after new memories are written and decides whether
// each one should stand, be removed as a duplicate, or supersede an
// existing contradicted memory. It acts as a second-pass consistency check
// behind the LLM merge decisions, which occasionally miss near-duplicates.
type SmartIngestGate struct {
	searcher MemorySearcher
	cfg      IngestConfig
}

// NewSmartIngestGate creates a SmartIngestGate.
func NewSmartIngestGate(searcher MemorySearcher, cfg IngestConfig) *SmartIngestGate {
	if cfg.SkipThreshold == 0 {
		cfg = DefaultIngestConfig()
	}
	return &SmartIngestGate{searcher: searcher, cfg: cfg}
}

// Evaluate decides how to handle newly ingested content.
//
// The decision ladder, driven by the best similarity match among existing
// memories (excluding the batch's own IDs):
//
//   - score > SkipThreshold, or word overlap > SkipOverlapThreshold:
//     skip (duplicate)
//   - score > UpdateThreshold: supersede if any contradiction is detected,
//     otherwise update
//   - score > SupersedeThreshold: supersede only when the contradiction
//     confidence exceeds SupersedeConfidence
//   - otherwise: create (novel information)
//
// Parameters:
//   - ctx: Context for the similarity search
//   - content: The newly ingested content
//   - userID: Owning user
//   - agentID: Owning agent (may be empty)
//   - excludeIDs: Memory IDs from the current batch, excluded from matching
//
// Returns the decision and, for update/supersede, the existing memory's ID.
// A failed similarity search degrades to create rather than blocking the
// write.
func (g *SmartIngestGate) Evaluate(ctx context.Context, content, userID, agentID string, excludeIDs []string) (IngestDecision, string, error) {
	decision, existingID, _, err := g.evaluate(ctx, content, userID, agentID, excludeIDs)
	return decision, existingID, err
}

// evaluate is Evaluate plus the contradiction that drove a supersede
// decision, so batch validation can record why a memory was superseded.
func (g *SmartIngestGate) evaluate(ctx context.Context, content, userID, agentID string, excludeIDs []string) (IngestDecision, string, ContradictionResult, error) {
	var none ContradictionResult

	if content == "" {
		return DecisionCreate, "", none, nil
	}

	matches, err := g.searcher.SearchSimilar(ctx, content, userID, agentID, 5)
	if err != nil {
		log.Printf("ingest: similarity search failed, keeping memory: %v", err)
		return DecisionCreate, "", none, nil
	}

	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}

	var best *storage.Memory
	for _, m := range matches {
		if _, ok := excluded[m.ID]; ok {
			continue
		}
		best = m
		break
	}
	if best == nil {
		return DecisionCreate, "", none, nil
	}

	overlap := WordOverlapSimilarity(content, best.Content)

	if best.Score > g.cfg.SkipThreshold || overlap > g.cfg.SkipOverlapThreshold {
		return DecisionSkip, "", none, nil
	}

	if best.Score > g.cfg.UpdateThreshold {
		if c := DetectContradiction(content, best.Content); c.Contradicts {
			log.Printf("ingest: %s contradiction, superseding memory %s", c.Type, best.ID)
			return DecisionSupersede, best.ID, c, nil
		}
		return DecisionUpdate, best.ID, none, nil
	}

	if best.Score > g.cfg.SupersedeThreshold {
		if c := DetectContradiction(content, best.Content); c.Contradicts && c.Confidence > g.cfg.SupersedeConfidence {
			log.Printf("ingest: %s contradiction, superseding memory %s", c.Type, best.ID)
			return DecisionSupersede, best.ID, c, nil
		}
	}

	return DecisionCreate, "", none, nil
}

// Supersession links a new memory to the existing memory it displaced,
// with the contradiction that justified the displacement.
type Supersession struct {
	// NewMemoryID is the memory that takes precedence.
	NewMemoryID string

	// OldMemoryID is the contradicted memory being displaced.
	OldMemoryID string

	// Reason is the contradiction type (negation, antonym, temporal, numeric).
	Reason string

	// Confidence is the contradiction detection confidence in [0, 1].
	Confidence float64
}

// ValidationResult reports what a batch validation found: duplicates to
// delete and supersessions to record. The gate itself never mutates
// storage; the caller applies the result.
type ValidationResult struct {
	// Duplicates lists memory IDs that should be deleted as near-duplicates.
	Duplicates []string

	// Supersessions lists the supersession links found, newest memory first.
	Supersessions []Supersession
}

// ValidateBatch evaluates each added memory in a batch against the existing
// memory set, excluding the batch itself from matching.
//
// Only ADD results are checked; updates were already reconciled against
// existing memories by the merge decision step.
func (g *SmartIngestGate) ValidateBatch(ctx context.Context, added []*storage.Memory, userID, agentID string) (*ValidationResult, error) {
	if len(added) == 0 {
		return &ValidationResult{}, nil
	}

	batchIDs := make([]string, 0, len(added))
	for _, m := range added {
		batchIDs = append(batchIDs, m.ID)
	}

	result := &ValidationResult{}
	for _, m := range added {
		decision, existingID, contradiction, err := g.evaluate(ctx, m.Content, userID, agentID, batchIDs)
		if err != nil {
			return nil, fmt.Errorf("ValidateBatch: %w", err)
		}
		switch decision {
		case DecisionSkip:
			result.Duplicates = append(result.Duplicates, m.ID)
		case DecisionSupersede:
			result.Supersessions = append(result.Supersessions, Supersession{
				NewMemoryID: m.ID,
				OldMemoryID: existingID,
				Reason:      string(contradiction.Type),
				Confidence:  contradiction.Confidence,
			})
		}
	}

	if len(result.Duplicates) > 0 {
		log.Printf("ingest: removed %d/%d duplicates after validation", len(result.Duplicates), len(added))
	}
	return result, nil
}
