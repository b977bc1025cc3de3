package supervisor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
	"github.com/selfarchitectai/archon-core/internal/trust"
)

type fakeLedger struct {
	inserted  []*domain.Decision
	decisions map[string]*domain.Decision
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{decisions: make(map[string]*domain.Decision)}
}

func (f *fakeLedger) InsertDecision(d *domain.Decision) error {
	f.inserted = append(f.inserted, d)
	f.decisions[d.ID] = d
	return nil
}

func (f *fakeLedger) GetDecision(id string) (*domain.Decision, error) {
	d, ok := f.decisions[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *fakeLedger) RecentDecisions(limit int) ([]*domain.Decision, error) {
	return f.inserted, nil
}

func (f *fakeLedger) DecisionStats(window time.Duration) (int, int, float64, error) {
	total := len(f.inserted)
	completed := 0
	for _, d := range f.inserted {
		if d.Status == domain.DecisionCompleted {
			completed++
		}
	}
	return total, completed, 0.8, nil
}

func (f *fakeLedger) AgentSuccessRate(string, time.Duration) (float64, int, error) {
	return 0, 0, nil
}

type fakeSink struct {
	records []*domain.TelemetryRecord
}

func (f *fakeSink) Ingest(rec *domain.TelemetryRecord) (int64, error) {
	f.records = append(f.records, rec)
	return int64(len(f.records)), nil
}

type outcomeCall struct {
	agent        string
	contribution float64
	success      bool
}

type fakeWeights struct {
	calls []outcomeCall
}

func (f *fakeWeights) ApplyOutcome(agent string, contribution float64, success bool) error {
	f.calls = append(f.calls, outcomeCall{agent, contribution, success})
	return nil
}

func (f *fakeWeights) Weight(agent string) float64 { return 0.10 }

func newTestEngine(thresholds Thresholds) (*Engine, *fakeLedger, *fakeSink, *fakeWeights) {
	ledger := newFakeLedger()
	sink := &fakeSink{}
	weights := &fakeWeights{}
	scorer := trust.NewEngine(weights, ledger)
	return NewEngine(thresholds, scorer, ledger, sink, weights), ledger, sink, weights
}

func goodPlan() domain.Plan {
	return domain.Plan{
		Task:             "ship-feature",
		Description:      "a plan with a proper long description",
		RiskLevel:        domain.RiskLow,
		HasTests:         true,
		HasDocumentation: true,
		HasErrorHandling: true,
		Objectives:       []string{"ship"},
		SuccessCriteria:  []string{"green"},
		RollbackPlan:     "revert",
	}
}

func TestEvaluatePlanApproves(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	decision, err := engine.EvaluatePlan(goodPlan(), "claude")
	if err != nil {
		t.Fatalf("EvaluatePlan() error = %v", err)
	}
	if decision.Status != domain.DecisionApproved {
		t.Errorf("Status = %s, want approved (trust %.4f cohesion %.4f)",
			decision.Status, decision.TrustScore, decision.CohesionScore)
	}
	if decision.Reason != "all thresholds met" {
		t.Errorf("Reason = %q", decision.Reason)
	}
	if len(ledger.inserted) != 1 {
		t.Errorf("inserted %d decisions, want 1", len(ledger.inserted))
	}
}

func TestEvaluatePlanRejectsWithShortfall(t *testing.T) {
	// Impossible trust threshold forces rejection with a quantified reason.
	engine, ledger, _, _ := newTestEngine(Thresholds{Trust: 0.99, Cohesion: 0.99})

	decision, err := engine.EvaluatePlan(goodPlan(), "claude")
	if err != nil {
		t.Fatalf("EvaluatePlan() error = %v", err)
	}
	if decision.Status != domain.DecisionRejected {
		t.Fatalf("Status = %s, want rejected", decision.Status)
	}
	if !strings.Contains(decision.Reason, "trust_score") || !strings.Contains(decision.Reason, "short") {
		t.Errorf("Reason = %q, want per-criterion shortfall", decision.Reason)
	}

	// A rejection is still a recorded decision.
	if len(ledger.inserted) != 1 {
		t.Errorf("inserted %d decisions, want 1", len(ledger.inserted))
	}
}

func TestEvaluatePlanValidatesFirst(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	_, err := engine.EvaluatePlan(domain.Plan{Description: "no task"}, "claude")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(ledger.inserted) != 0 {
		t.Errorf("invalid plan recorded a decision")
	}
}

func TestProcessTelemetryAppliesOutcomes(t *testing.T) {
	engine, _, sink, weights := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	plan := goodPlan()
	plan.Contributions = map[string]float64{"claude": 0.7, "gpt": 0.3}
	decision, err := engine.EvaluatePlan(plan, "claude")
	if err != nil {
		t.Fatalf("EvaluatePlan() error = %v", err)
	}

	rec := &domain.TelemetryRecord{DecisionID: decision.ID, Status: domain.BuildSuccess}
	if err := engine.ProcessTelemetry(rec); err != nil {
		t.Fatalf("ProcessTelemetry() error = %v", err)
	}

	if len(sink.records) != 1 {
		t.Errorf("ingested %d records, want 1", len(sink.records))
	}
	if len(weights.calls) != 2 {
		t.Fatalf("ApplyOutcome called %d times, want 2", len(weights.calls))
	}
	byAgent := map[string]outcomeCall{}
	for _, call := range weights.calls {
		byAgent[call.agent] = call
		if !call.success {
			t.Errorf("outcome for %s recorded as failure", call.agent)
		}
	}
	if byAgent["claude"].contribution != 0.7 || byAgent["gpt"].contribution != 0.3 {
		t.Errorf("contributions = %v, want claude 0.7 gpt 0.3", byAgent)
	}
}

func TestProcessTelemetryNormalizesContributions(t *testing.T) {
	engine, _, _, weights := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	// Contribution maps need not be pre-normalized; raw shares are scaled
	// by their sum before reaching the weight book.
	plan := goodPlan()
	plan.Contributions = map[string]float64{"claude": 2, "gpt": 3}
	decision, err := engine.EvaluatePlan(plan, "claude")
	if err != nil {
		t.Fatalf("EvaluatePlan() error = %v", err)
	}

	rec := &domain.TelemetryRecord{DecisionID: decision.ID, Status: domain.BuildFailed}
	if err := engine.ProcessTelemetry(rec); err != nil {
		t.Fatalf("ProcessTelemetry() error = %v", err)
	}

	if len(weights.calls) != 2 {
		t.Fatalf("ApplyOutcome called %d times, want 2", len(weights.calls))
	}
	byAgent := map[string]outcomeCall{}
	for _, call := range weights.calls {
		byAgent[call.agent] = call
		if call.success {
			t.Errorf("outcome for %s recorded as success", call.agent)
		}
	}
	if byAgent["claude"].contribution != 0.4 || byAgent["gpt"].contribution != 0.6 {
		t.Errorf("contributions = %v, want claude 0.4 gpt 0.6", byAgent)
	}
}

func TestProcessTelemetrySkipsNonTerminalStatuses(t *testing.T) {
	engine, _, sink, weights := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	rec := &domain.TelemetryRecord{DecisionID: "dec-whatever", Status: domain.BuildPending}
	if err := engine.ProcessTelemetry(rec); err != nil {
		t.Fatalf("ProcessTelemetry() error = %v", err)
	}
	if len(sink.records) != 1 {
		t.Errorf("ingested %d records, want 1", len(sink.records))
	}
	if len(weights.calls) != 0 {
		t.Errorf("ApplyOutcome called for a pending build")
	}
}

func TestSystemHealth(t *testing.T) {
	engine, ledger, _, _ := newTestEngine(Thresholds{Trust: 0.70, Cohesion: 0.60})

	for i := 0; i < 4; i++ {
		status := domain.DecisionCompleted
		if i >= 3 {
			status = domain.DecisionFailed
		}
		ledger.inserted = append(ledger.inserted, &domain.Decision{Status: status})
	}

	health, err := engine.SystemHealth()
	if err != nil {
		t.Fatalf("SystemHealth() error = %v", err)
	}
	if health.Status != "degraded" {
		t.Errorf("Status = %q, want degraded at 75%% success", health.Status)
	}
	if health.TotalDecisions24h != 4 || health.Completed24h != 3 {
		t.Errorf("counts = %d/%d, want 4/3", health.TotalDecisions24h, health.Completed24h)
	}
}
