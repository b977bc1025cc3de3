package domain

import "time"

// CycleState represents the production line's build state
type CycleState string

const (
	CycleIdle        CycleState = "idle"
	CycleBuilding    CycleState = "building"
	CycleTesting     CycleState = "testing"
	CycleDeploying   CycleState = "deploying"
	CycleSuccess     CycleState = "success"
	CycleFailed      CycleState = "failed"
	CycleSelfHealing CycleState = "self_healing"
)

// cycleTransitions is the allowed state graph for a production cycle.
// Success and failed are re-entrant: the line keeps running after recording.
var cycleTransitions = map[CycleState][]CycleState{
	CycleIdle:        {CycleBuilding},
	CycleSuccess:     {CycleBuilding},
	CycleFailed:      {CycleBuilding, CycleSelfHealing},
	CycleBuilding:    {CycleTesting, CycleFailed},
	CycleTesting:     {CycleSuccess, CycleFailed, CycleDeploying},
	CycleDeploying:   {CycleSuccess, CycleFailed},
	CycleSelfHealing: {CycleBuilding},
}

// CanTransition reports whether from -> to is an allowed state change.
func (from CycleState) CanTransition(to CycleState) bool {
	for _, next := range cycleTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateCycleTransition returns an InvalidTransitionError if from -> to is
// not in the allowed graph.
func ValidateCycleTransition(id string, from, to CycleState) error {
	if !from.CanTransition(to) {
		return &InvalidTransitionError{
			Entity: "cycle",
			ID:     id,
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

// ProductionCycle is one run of the build/test/deploy loop. Archived with
// an EndedAt stamp when superseded, never deleted.
type ProductionCycle struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	State        CycleState `json:"state"`
	BuildCount   int        `json:"build_count"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
}
