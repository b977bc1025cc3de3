package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testDecision(id string, source string, status domain.DecisionStatus, at time.Time) *domain.Decision {
	return &domain.Decision{
		ID:        id,
		Timestamp: at,
		Source:    source,
		Plan: domain.Plan{
			Task:        "task-" + id,
			Description: "a plan used in store tests",
			RiskLevel:   domain.RiskLow,
		},
		TrustScore:     0.82,
		CohesionScore:  0.75,
		CostEfficiency: 0.90,
		Status:         status,
		Reason:         "all thresholds met",
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	want := testDecision("dec-roundtrip01", "claude", domain.DecisionApproved, now)
	if err := store.InsertDecision(want); err != nil {
		t.Fatalf("InsertDecision() error = %v", err)
	}

	got, err := store.GetDecision("dec-roundtrip01")
	if err != nil {
		t.Fatalf("GetDecision() error = %v", err)
	}
	if got.Source != want.Source || got.Status != want.Status || got.Reason != want.Reason {
		t.Errorf("GetDecision() = %+v, want %+v", got, want)
	}
	if !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, want.Timestamp)
	}
	if got.Plan.Task != want.Plan.Task || got.Plan.RiskLevel != want.Plan.RiskLevel {
		t.Errorf("Plan = %+v, want %+v", got.Plan, want.Plan)
	}
	if got.TrustScore != want.TrustScore {
		t.Errorf("TrustScore = %v, want %v", got.TrustScore, want.TrustScore)
	}
}

func TestTransitionDecision(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	d := testDecision("dec-transition1", "claude", domain.DecisionApproved, now)
	if err := store.InsertDecision(d); err != nil {
		t.Fatalf("InsertDecision() error = %v", err)
	}

	if err := store.TransitionDecision(d.ID, domain.DecisionExecuting); err != nil {
		t.Fatalf("TransitionDecision(executing) error = %v", err)
	}

	// Executing cannot jump back to approved; the row must be untouched.
	err := store.TransitionDecision(d.ID, domain.DecisionApproved)
	var terr *domain.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("TransitionDecision(invalid) error = %v, want InvalidTransitionError", err)
	}

	got, err := store.GetDecision(d.ID)
	if err != nil {
		t.Fatalf("GetDecision() error = %v", err)
	}
	if got.Status != domain.DecisionExecuting {
		t.Errorf("Status after rejected transition = %s, want %s", got.Status, domain.DecisionExecuting)
	}
}

func TestNextApprovedDecision(t *testing.T) {
	store := newTestStore(t)

	got, err := store.NextApprovedDecision()
	if err != nil {
		t.Fatalf("NextApprovedDecision() error = %v", err)
	}
	if got != nil {
		t.Fatalf("NextApprovedDecision() on empty store = %+v, want nil", got)
	}

	base := time.Now().UTC()
	older := testDecision("dec-older000001", "claude", domain.DecisionApproved, base.Add(-time.Hour))
	newer := testDecision("dec-newer000001", "claude", domain.DecisionApproved, base)
	rejected := testDecision("dec-reject00001", "claude", domain.DecisionRejected, base.Add(-2*time.Hour))
	for _, d := range []*domain.Decision{newer, older, rejected} {
		if err := store.InsertDecision(d); err != nil {
			t.Fatalf("InsertDecision(%s) error = %v", d.ID, err)
		}
	}

	got, err = store.NextApprovedDecision()
	if err != nil {
		t.Fatalf("NextApprovedDecision() error = %v", err)
	}
	if got == nil || got.ID != older.ID {
		t.Errorf("NextApprovedDecision() = %+v, want oldest approved %s", got, older.ID)
	}
}

func TestRecentDecisionsOrder(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		d := testDecision(
			[]string{"dec-first000001", "dec-second00001", "dec-third000001"}[i],
			"claude", domain.DecisionApproved, base.Add(time.Duration(i)*time.Minute))
		if err := store.InsertDecision(d); err != nil {
			t.Fatalf("InsertDecision() error = %v", err)
		}
	}

	got, err := store.RecentDecisions(2)
	if err != nil {
		t.Fatalf("RecentDecisions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("RecentDecisions(2) returned %d rows", len(got))
	}
	if got[0].ID != "dec-third000001" || got[1].ID != "dec-second00001" {
		t.Errorf("RecentDecisions() order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}
}

func TestAgentSuccessRate(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	statuses := []domain.DecisionStatus{
		domain.DecisionCompleted,
		domain.DecisionCompleted,
		domain.DecisionFailed,
		domain.DecisionRejected,
	}
	for i, status := range statuses {
		d := testDecision(
			[]string{"dec-rate0000001", "dec-rate0000002", "dec-rate0000003", "dec-rate0000004"}[i],
			"claude", status, base.Add(-time.Duration(i)*time.Hour))
		if err := store.InsertDecision(d); err != nil {
			t.Fatalf("InsertDecision() error = %v", err)
		}
	}
	// Outside the window: must not count.
	old := testDecision("dec-rate0000005", "claude", domain.DecisionCompleted, base.Add(-40*24*time.Hour))
	if err := store.InsertDecision(old); err != nil {
		t.Fatalf("InsertDecision() error = %v", err)
	}

	rate, total, err := store.AgentSuccessRate("claude", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("AgentSuccessRate() error = %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if rate != 0.5 {
		t.Errorf("rate = %v, want 0.5", rate)
	}

	rate, total, err = store.AgentSuccessRate("nobody", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("AgentSuccessRate(nobody) error = %v", err)
	}
	if rate != 0 || total != 0 {
		t.Errorf("AgentSuccessRate(nobody) = %v/%d, want 0/0", rate, total)
	}
}

func TestDecisionStats(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	a := testDecision("dec-stats000001", "claude", domain.DecisionCompleted, base.Add(-time.Hour))
	a.TrustScore = 0.80
	b := testDecision("dec-stats000002", "gpt", domain.DecisionRejected, base.Add(-2*time.Hour))
	b.TrustScore = 0.60
	for _, d := range []*domain.Decision{a, b} {
		if err := store.InsertDecision(d); err != nil {
			t.Fatalf("InsertDecision() error = %v", err)
		}
	}

	total, completed, avgTrust, err := store.DecisionStats(24 * time.Hour)
	if err != nil {
		t.Fatalf("DecisionStats() error = %v", err)
	}
	if total != 2 || completed != 1 {
		t.Errorf("DecisionStats() = %d total %d completed, want 2/1", total, completed)
	}
	if avgTrust < 0.69 || avgTrust > 0.71 {
		t.Errorf("avgTrust = %v, want 0.70", avgTrust)
	}
}

func TestSetDecisionBuildID(t *testing.T) {
	store := newTestStore(t)

	d := testDecision("dec-build000001", "claude", domain.DecisionExecuting, time.Now().UTC())
	if err := store.InsertDecision(d); err != nil {
		t.Fatalf("InsertDecision() error = %v", err)
	}
	if err := store.SetDecisionBuildID(d.ID, "run-42"); err != nil {
		t.Fatalf("SetDecisionBuildID() error = %v", err)
	}

	got, err := store.GetDecision(d.ID)
	if err != nil {
		t.Fatalf("GetDecision() error = %v", err)
	}
	if got.BuildID != "run-42" {
		t.Errorf("BuildID = %q, want run-42", got.BuildID)
	}
}
