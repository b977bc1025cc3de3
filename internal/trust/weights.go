package trust

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// Per-outcome weight deltas. Failures decay faster than successes reward,
// reflecting asymmetric risk.
const (
	successDelta = 0.01
	failureDelta = -0.02
)

// WeightRepo persists the weight map and its append-only adjustment history.
type WeightRepo interface {
	Weights() (map[string]float64, error)
	SaveWeights(weights map[string]float64, history []domain.WeightAdjustment) error
}

// Book owns the per-agent trust weight map. All mutations go through its
// mutex so the sum-to-one and band invariants hold under concurrent updates.
type Book struct {
	mu       sync.RWMutex
	repo     WeightRepo
	weights  map[string]float64
	min, max float64
}

// NewBook loads the persisted weight map. min and max bound every entry.
func NewBook(repo WeightRepo, min, max float64) (*Book, error) {
	weights, err := repo.Weights()
	if err != nil {
		return nil, err
	}
	return &Book{
		repo:    repo,
		weights: weights,
		min:     min,
		max:     max,
	}, nil
}

// Weight returns the current weight for an agent, or DefaultWeight for
// agents the book has never seen.
func (b *Book) Weight(agent string) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if w, ok := b.weights[agent]; ok {
		return w
	}
	return DefaultWeight
}

// Current returns a copy of the full weight map.
func (b *Book) Current() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.weights))
	for agent, w := range b.weights {
		out[agent] = w
	}
	return out
}

// ApplyOutcome adjusts an agent's weight from an observed build outcome,
// scaled by the agent's contribution fraction, then renormalizes the map so
// all entries sum to 1.0. Agents absent from the book are seeded at
// DefaultWeight before the delta applies. Every moved entry gets a history
// record.
func (b *Book) ApplyOutcome(agent string, contribution float64, success bool) error {
	if contribution < 0 || contribution > 1 {
		return &domain.ValidationError{Field: "contribution", Reason: fmt.Sprintf("fraction %v outside [0,1]", contribution)}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	updated := make(map[string]float64, len(b.weights)+1)
	for a, w := range b.weights {
		updated[a] = w
	}
	if _, ok := updated[agent]; !ok {
		updated[agent] = DefaultWeight
	}

	delta := successDelta * contribution
	reason := "telemetry update: success"
	if !success {
		delta = failureDelta * contribution
		reason = "telemetry update: failed"
	}

	updated[agent] = b.clampBand(updated[agent] + delta)
	normalize(updated)

	history := b.diffHistory(updated, agent, reason)
	if err := b.repo.SaveWeights(updated, history); err != nil {
		return err
	}
	b.weights = updated
	return nil
}

// SetWeights overwrites the weight map wholesale, e.g. from an external
// optimizer. Inputs are validated to [0,1], normalized so their proportions
// are preserved, and rejected without commit if any normalized entry falls
// outside the configured band.
func (b *Book) SetWeights(weights map[string]float64, reason string) error {
	if len(weights) == 0 {
		return &domain.ValidationError{Field: "weights", Reason: "empty weight map"}
	}

	sum := 0.0
	for agent, w := range weights {
		if w < 0 || w > 1 {
			return &domain.ValidationError{Field: "weights", Reason: fmt.Sprintf("weight %v for %s outside [0,1]", w, agent)}
		}
		sum += w
	}
	if sum <= 0 {
		return &domain.ValidationError{Field: "weights", Reason: "weights sum to zero"}
	}

	normalized := make(map[string]float64, len(weights))
	for agent, w := range weights {
		nw := w / sum
		if nw < b.min || nw > b.max {
			return &domain.ValidationError{
				Field:  "weights",
				Reason: fmt.Sprintf("normalized weight %.4f for %s outside band [%.2f, %.2f]", nw, agent, b.min, b.max),
			}
		}
		normalized[agent] = nw
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	history := b.diffHistory(normalized, "", reason)
	if err := b.repo.SaveWeights(normalized, history); err != nil {
		return err
	}
	b.weights = normalized
	return nil
}

// diffHistory builds one adjustment record per entry that moved. The primary
// agent keeps the outcome reason; entries moved only by renormalization are
// recorded as such. Callers hold b.mu.
func (b *Book) diffHistory(updated map[string]float64, primary, reason string) []domain.WeightAdjustment {
	now := time.Now().UTC()
	var history []domain.WeightAdjustment
	for agent, nw := range updated {
		old, existed := b.weights[agent]
		if !existed {
			old = DefaultWeight
		}
		if math.Abs(nw-old) < 1e-9 && existed {
			continue
		}
		r := reason
		if primary != "" && agent != primary {
			r = "renormalize"
		}
		history = append(history, domain.WeightAdjustment{
			Timestamp: now,
			AgentID:   agent,
			OldWeight: old,
			NewWeight: nw,
			Reason:    r,
		})
	}
	return history
}

func (b *Book) clampBand(w float64) float64 {
	if w < b.min {
		return b.min
	}
	if w > b.max {
		return b.max
	}
	return w
}

func normalize(weights map[string]float64) {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return
	}
	for agent, w := range weights {
		weights[agent] = w / sum
	}
}
