package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// DecisionStatus represents the lifecycle state of a decision
type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "pending"
	DecisionApproved  DecisionStatus = "approved"
	DecisionRejected  DecisionStatus = "rejected"
	DecisionExecuting DecisionStatus = "executing"
	DecisionCompleted DecisionStatus = "completed"
	DecisionFailed    DecisionStatus = "failed"
)

// decisionTransitions is the allowed forward graph. A decision never
// reverts to pending and rejected/completed/failed are terminal.
var decisionTransitions = map[DecisionStatus][]DecisionStatus{
	DecisionPending:   {DecisionApproved, DecisionRejected},
	DecisionApproved:  {DecisionExecuting},
	DecisionExecuting: {DecisionCompleted, DecisionFailed},
}

// CanTransition reports whether from -> to is an allowed status change.
func (from DecisionStatus) CanTransition(to DecisionStatus) bool {
	for _, next := range decisionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidTransitionError if from -> to is not
// in the allowed graph.
func ValidateDecisionTransition(id string, from, to DecisionStatus) error {
	if !from.CanTransition(to) {
		return &InvalidTransitionError{
			Entity: "decision",
			ID:     id,
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

// Decision is the supervisor's verdict on a plan, with its scores and an
// approval status. Created once; only the status field mutates afterwards.
type Decision struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Plan           Plan           `json:"plan"`
	TrustScore     float64        `json:"trust_score"`
	CohesionScore  float64        `json:"cohesion_score"`
	CostEfficiency float64        `json:"cost_efficiency"`
	Status         DecisionStatus `json:"status"`
	Reason         string         `json:"reason"`
	BuildID        string         `json:"build_id,omitempty"`
}

// NewDecisionID derives a decision ID from the plan content and submission
// time: dec-<first 12 hex chars of sha256(plan JSON + timestamp)>.
func NewDecisionID(plan Plan, at time.Time) string {
	payload, _ := json.Marshal(plan)
	sum := sha256.Sum256(append(payload, []byte(at.UTC().Format(time.RFC3339Nano))...))
	return fmt.Sprintf("dec-%s", hex.EncodeToString(sum[:])[:12])
}
