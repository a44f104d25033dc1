package intelligence

import (
	"math"
	"time"
)

// RetentionManager scores memory retention using the Ebbinghaus forgetting
// curve. Memories decay over time since their last update and are
// reinforced when recalled, so frequently used memories stay strong while
// untouched ones fade toward pruning thresholds.
type RetentionManager struct {
	// decayRate controls how fast retention drops. Typical range: 0.05-0.2.
	decayRate float64

	// reinforcementFactor controls how much a recall strengthens a memory.
	// Typical range: 0.2-0.5.
	reinforcementFactor float64

	// demotionFactor is the multiplier applied when a memory is superseded
	// by newer information.
	demotionFactor float64

	// pruneThreshold is the retention below which a memory is a candidate
	// for forgetting.
	pruneThreshold float64
}

// DefaultInitialRetention is the retention strength assigned to new memories.
const DefaultInitialRetention = 1.0

// NewRetentionManager creates a RetentionManager.
//
// Parameters:
//   - decayRate: Rate at which memories decay (0.05-0.2 recommended)
//   - reinforcementFactor: Strengthening applied on recall (0.2-0.5 recommended)
//
// The demotion factor defaults to 0.5 and the prune threshold to 0.2.
func NewRetentionManager(decayRate, reinforcementFactor float64) *RetentionManager {
	return &RetentionManager{
		decayRate:           decayRate,
		reinforcementFactor: reinforcementFactor,
		demotionFactor:      0.5,
		pruneThreshold:      0.2,
	}
}

// CurrentRetention calculates the decayed retention of a memory.
//
// The formula is R = base * e^(-decayRate * hoursElapsed / 24), where
// hoursElapsed is the time since the memory was last updated or recalled.
//
// Parameters:
//   - base: Retention strength recorded at the reference time
//   - since: The reference time (last update or recall)
//
// Returns the current retention clamped to [0, 1].
func (m *RetentionManager) CurrentRetention(base float64, since time.Time) float64 {
	hours := time.Since(since).Hours()
	if hours < 0 {
		hours = 0
	}
	retention := base * math.Exp(-m.decayRate*hours/24.0)
	return clamp01(retention)
}

// Reinforce strengthens a memory on recall.
//
// The formula is newStrength = strength + factor * (1 - strength), so weak
// memories gain more than strong ones and strength never exceeds 1.0.
func (m *RetentionManager) Reinforce(strength float64) float64 {
	return clamp01(strength + m.reinforcementFactor*(1.0-strength))
}

// Demote weakens a memory that has been superseded by newer information.
// The memory is kept for provenance but ranks lower in future searches.
func (m *RetentionManager) Demote(strength float64) float64 {
	return clamp01(strength * m.demotionFactor)
}

// ShouldPrune reports whether a memory's retention has decayed below the
// prune threshold.
func (m *RetentionManager) ShouldPrune(base float64, since time.Time) bool {
	return m.CurrentRetention(base, since) < m.pruneThreshold
}

// NextReview calculates when a memory should next be surfaced for review.
// Stronger memories get longer intervals: hours = 24 * (1 + strength * 10).
func (m *RetentionManager) NextReview(strength float64) time.Time {
	hours := 24.0 * (1.0 + clamp01(strength)*10.0)
	return time.Now().Add(time.Duration(hours * float64(time.Hour)))
}

func clamp01(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0.0 {
		return 0.0
	}
	return v
}
