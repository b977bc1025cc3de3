// Package supervisor evaluates incoming plans against the configured trust
// and cohesion gates, records decisions, and routes build telemetry back
// into the weight book.
package supervisor

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
	"github.com/selfarchitectai/archon-core/internal/trust"
)

// DecisionLedger is the persistence surface the supervisor needs.
type DecisionLedger interface {
	InsertDecision(d *domain.Decision) error
	GetDecision(id string) (*domain.Decision, error)
	RecentDecisions(limit int) ([]*domain.Decision, error)
	DecisionStats(window time.Duration) (total, completed int, avgTrust float64, err error)
}

// TelemetrySink ingests build outcome records.
type TelemetrySink interface {
	Ingest(rec *domain.TelemetryRecord) (int64, error)
}

// OutcomeApplier adjusts trust weights from observed outcomes.
type OutcomeApplier interface {
	ApplyOutcome(agent string, contribution float64, success bool) error
}

// Thresholds gate plan approval.
type Thresholds struct {
	Trust    float64
	Cohesion float64
}

// Engine is the decision evaluator.
type Engine struct {
	thresholds Thresholds
	scorer     *trust.Engine
	ledger     DecisionLedger
	sink       TelemetrySink
	weights    OutcomeApplier
}

// NewEngine wires the evaluator to its scorer, ledger, and feedback sinks.
func NewEngine(thresholds Thresholds, scorer *trust.Engine, ledger DecisionLedger, sink TelemetrySink, weights OutcomeApplier) *Engine {
	return &Engine{
		thresholds: thresholds,
		scorer:     scorer,
		ledger:     ledger,
		sink:       sink,
		weights:    weights,
	}
}

// EvaluatePlan scores a plan and renders an approve/reject decision. The
// decision is recorded before returning; a rejection is itself a recorded
// decision, not an error.
func (e *Engine) EvaluatePlan(plan domain.Plan, source string) (*domain.Decision, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	score := e.scorer.EvaluateTrust(&plan, source)
	cohesion := e.scorer.EvaluateCohesion(&plan)
	costEff := e.scorer.EvaluateCostEfficiency(&plan)

	decision := &domain.Decision{
		ID:             domain.NewDecisionID(plan, now),
		Timestamp:      now,
		Source:         source,
		Plan:           plan,
		TrustScore:     score.Overall,
		CohesionScore:  cohesion,
		CostEfficiency: costEff,
	}

	var failures []string
	if score.Overall < e.thresholds.Trust {
		failures = append(failures, fmt.Sprintf("trust_score %.4f < %.2f (short %.4f)",
			score.Overall, e.thresholds.Trust, e.thresholds.Trust-score.Overall))
	}
	if cohesion < e.thresholds.Cohesion {
		failures = append(failures, fmt.Sprintf("cohesion_score %.4f < %.2f (short %.4f)",
			cohesion, e.thresholds.Cohesion, e.thresholds.Cohesion-cohesion))
	}

	if len(failures) == 0 {
		decision.Status = domain.DecisionApproved
		decision.Reason = "all thresholds met"
	} else {
		decision.Status = domain.DecisionRejected
		decision.Reason = strings.Join(failures, "; ")
	}

	if err := e.ledger.InsertDecision(decision); err != nil {
		return nil, err
	}

	log.Printf("supervisor: %s %s from %s (trust=%.4f cohesion=%.4f cost_eff=%.4f)",
		decision.ID, decision.Status, source, score.Overall, cohesion, costEff)

	return decision, nil
}

// ProcessTelemetry ingests a build outcome and feeds it back into the
// per-agent trust weights. Decision status transitions stay with the
// production controller, which owns the execution lifecycle.
func (e *Engine) ProcessTelemetry(rec *domain.TelemetryRecord) error {
	if _, err := e.sink.Ingest(rec); err != nil {
		return err
	}

	if rec.DecisionID == "" {
		return nil
	}
	if rec.Status != domain.BuildSuccess && rec.Status != domain.BuildFailed {
		return nil
	}

	decision, err := e.ledger.GetDecision(rec.DecisionID)
	if err != nil {
		return fmt.Errorf("loading decision for telemetry: %w", err)
	}

	success := rec.Status == domain.BuildSuccess
	for _, agent := range decision.Plan.ContributingAgents(decision.Source) {
		frac := decision.Plan.ContributionFor(agent, decision.Source)
		if frac <= 0 {
			continue
		}
		if err := e.weights.ApplyOutcome(agent, frac, success); err != nil {
			return fmt.Errorf("applying outcome for %s: %w", agent, err)
		}
	}
	return nil
}

// RecentDecisions returns the latest decisions, newest first.
func (e *Engine) RecentDecisions(limit int) ([]*domain.Decision, error) {
	return e.ledger.RecentDecisions(limit)
}

// Health is an overall system health snapshot.
type Health struct {
	Status            string    `json:"status"`
	SuccessRate24h    float64   `json:"success_rate_24h"`
	TotalDecisions24h int       `json:"total_decisions_24h"`
	Completed24h      int       `json:"successful_builds_24h"`
	AvgTrustScore     float64   `json:"average_trust_score"`
	Timestamp         time.Time `json:"timestamp"`
}

// SystemHealth summarizes the last 24 hours of decisions.
func (e *Engine) SystemHealth() (Health, error) {
	total, completed, avgTrust, err := e.ledger.DecisionStats(24 * time.Hour)
	if err != nil {
		return Health{}, err
	}

	rate := 1.0
	if total > 0 {
		rate = float64(completed) / float64(total)
	}
	if avgTrust == 0 {
		avgTrust = 0.75
	}

	status := "healthy"
	if rate < 0.8 {
		status = "degraded"
	}

	return Health{
		Status:            status,
		SuccessRate24h:    rate,
		TotalDecisions24h: total,
		Completed24h:      completed,
		AvgTrustScore:     avgTrust,
		Timestamp:         time.Now().UTC(),
	}, nil
}
