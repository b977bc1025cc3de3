package trust

import (
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// Scoring constants. The thresholds a score is gated against live in config;
// these shape the scores themselves and are part of the engine's contract.
const (
	baseContentTrust   = 0.70
	baseCohesion       = 0.75
	baseCostEfficiency = 0.80

	sourceTrustFloor = 0.55
	// DefaultWeight is assumed for agents with no entry in the weight book.
	DefaultWeight = 0.10

	defaultHistoricalTrust = 0.75
	historyWindow          = 30 * 24 * time.Hour

	weightSource     = 0.35
	weightContent    = 0.40
	weightHistorical = 0.25
)

// HistorySource supplies an agent's completed-decision rate over a trailing
// window. total is the number of decisions considered.
type HistorySource interface {
	AgentSuccessRate(source string, window time.Duration) (rate float64, total int, err error)
}

// WeightSource supplies the current trust weight for an agent.
type WeightSource interface {
	Weight(agent string) float64
}

// Score carries the blended trust score and its components.
type Score struct {
	Overall    float64 `json:"overall"`
	Source     float64 `json:"source_trust"`
	Content    float64 `json:"content_trust"`
	Historical float64 `json:"historical_trust"`
}

// Engine computes trust, cohesion, and cost efficiency scores for plans.
// Stateless per call aside from reading current weights and history, so it
// is safe for concurrent evaluation.
type Engine struct {
	weights WeightSource
	history HistorySource
}

// NewEngine creates a scoring engine backed by the given weight book and
// decision history.
func NewEngine(weights WeightSource, history HistorySource) *Engine {
	return &Engine{weights: weights, history: history}
}

// EvaluateTrust blends source, content, and historical trust for a plan.
func (e *Engine) EvaluateTrust(plan *domain.Plan, source string) Score {
	s := Score{
		Source:     e.sourceTrust(source),
		Content:    e.contentTrust(plan),
		Historical: e.historicalTrust(source),
	}
	s.Overall = clamp(weightSource*s.Source + weightContent*s.Content + weightHistorical*s.Historical)
	return s
}

func (e *Engine) sourceTrust(source string) float64 {
	return sourceTrustFloor + e.weights.Weight(source)
}

func (e *Engine) contentTrust(plan *domain.Plan) float64 {
	trust := baseContentTrust

	switch plan.Risk() {
	case domain.RiskLow:
		trust += 0.10
	case domain.RiskHigh:
		trust -= 0.15
	}

	if plan.HasTests {
		trust += 0.05
	}
	if plan.HasDocumentation {
		trust += 0.03
	}
	if plan.HasErrorHandling {
		trust += 0.05
	}

	// Size and cost penalties: higher tier wins, penalties never stack.
	switch {
	case plan.EstimatedTokens > 50000:
		trust -= 0.10
	case plan.EstimatedTokens > 10000:
		trust -= 0.05
	}
	switch {
	case plan.EstimatedCost > 5.0:
		trust -= 0.10
	case plan.EstimatedCost > 1.0:
		trust -= 0.05
	}

	return clamp(trust)
}

func (e *Engine) historicalTrust(source string) float64 {
	rate, total, err := e.history.AgentSuccessRate(source, historyWindow)
	if err != nil || total == 0 {
		return defaultHistoricalTrust
	}
	// 50% success maps to 0.70 trust, 100% to 0.95.
	return 0.45 + rate*0.50
}

// EvaluateCohesion measures how complete a plan's stated goals and
// safeguards are.
func (e *Engine) EvaluateCohesion(plan *domain.Plan) float64 {
	cohesion := baseCohesion

	if plan.Task != "" {
		cohesion += 0.05
	}
	if plan.Description != "" {
		cohesion += 0.05
	}
	if len(plan.Objectives) > 0 {
		cohesion += 0.05
	}
	if len(plan.SuccessCriteria) > 0 {
		cohesion += 0.05
	}
	if plan.RollbackPlan != "" {
		cohesion += 0.05
	}

	if len(plan.Description) < 20 {
		cohesion -= 0.10
	}

	return clamp(cohesion)
}

// EvaluateCostEfficiency measures resource economy across token, dollar,
// and time bands. Bands are evaluated independently and summed.
func (e *Engine) EvaluateCostEfficiency(plan *domain.Plan) float64 {
	efficiency := baseCostEfficiency

	switch tokens := plan.TokensEstimate(); {
	case tokens < 500:
		efficiency += 0.10
	case tokens < 2000:
		efficiency += 0.05
	case tokens > 50000:
		efficiency -= 0.20
	case tokens > 10000:
		efficiency -= 0.10
	}

	switch cost := plan.CostEstimate(); {
	case cost < 0.10:
		efficiency += 0.10
	case cost < 0.50:
		efficiency += 0.05
	case cost > 5.0:
		efficiency -= 0.20
	case cost > 2.0:
		efficiency -= 0.10
	}

	switch secs := plan.DurationEstimate(); {
	case secs < 30:
		efficiency += 0.05
	case secs > 600:
		efficiency -= 0.10
	case secs > 300:
		efficiency -= 0.05
	}

	return clamp(efficiency)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
