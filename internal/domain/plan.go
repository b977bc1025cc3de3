package domain

import (
	"fmt"
	"time"
)

// RiskLevel classifies how dangerous a plan is to execute
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Plan is a proposed unit of work submitted by a planning agent.
// Immutable once handed to the supervisor for evaluation.
type Plan struct {
	Task             string             `yaml:"task" json:"task"`
	Description      string             `yaml:"description" json:"description"`
	RiskLevel        RiskLevel          `yaml:"risk_level" json:"risk_level"`
	EstimatedTokens  int                `yaml:"estimated_tokens" json:"estimated_tokens"`
	EstimatedCost    float64            `yaml:"estimated_cost" json:"estimated_cost"`
	EstimatedSeconds float64            `yaml:"estimated_time_seconds" json:"estimated_time_seconds"`
	HasTests         bool               `yaml:"has_tests" json:"has_tests"`
	HasDocumentation bool               `yaml:"has_documentation" json:"has_documentation"`
	HasErrorHandling bool               `yaml:"has_error_handling" json:"has_error_handling"`
	RollbackPlan     string             `yaml:"rollback_plan,omitempty" json:"rollback_plan,omitempty"`
	Objectives       []string           `yaml:"objectives,omitempty" json:"objectives,omitempty"`
	SuccessCriteria  []string           `yaml:"success_criteria,omitempty" json:"success_criteria,omitempty"`
	Contributions    map[string]float64 `yaml:"contributions,omitempty" json:"contributions,omitempty"`
}

// Validate checks that the identifying fields a plan must carry are present.
func (p *Plan) Validate() error {
	if p.Task == "" {
		return &ValidationError{Field: "task", Reason: "task identifier is required"}
	}
	if p.Description == "" {
		return &ValidationError{Field: "description", Reason: "description is required"}
	}
	switch p.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh, "":
	default:
		return &ValidationError{Field: "risk_level", Reason: fmt.Sprintf("unknown risk level %q", p.RiskLevel)}
	}
	for agent, frac := range p.Contributions {
		if frac < 0 {
			return &ValidationError{Field: "contributions", Reason: fmt.Sprintf("negative contribution for %s", agent)}
		}
	}
	return nil
}

// Risk returns the plan's risk level, defaulting to medium when unset.
func (p *Plan) Risk() RiskLevel {
	if p.RiskLevel == "" {
		return RiskMedium
	}
	return p.RiskLevel
}

// Cost-efficiency defaults applied when an estimate is absent. Content
// trust penalties use the raw values: an absent estimate is never penalized.
const (
	DefaultEstimatedTokens  = 1000
	DefaultEstimatedCost    = 0.10
	DefaultEstimatedSeconds = 60.0
)

// TokensEstimate returns the estimated token count, defaulting when unset.
func (p *Plan) TokensEstimate() int {
	if p.EstimatedTokens == 0 {
		return DefaultEstimatedTokens
	}
	return p.EstimatedTokens
}

// CostEstimate returns the estimated dollar cost, defaulting when unset.
func (p *Plan) CostEstimate() float64 {
	if p.EstimatedCost == 0 {
		return DefaultEstimatedCost
	}
	return p.EstimatedCost
}

// DurationEstimate returns the estimated duration in seconds, defaulting
// when unset.
func (p *Plan) DurationEstimate() float64 {
	if p.EstimatedSeconds == 0 {
		return DefaultEstimatedSeconds
	}
	return p.EstimatedSeconds
}

// ContributionFor returns the contribution fraction attributed to an agent,
// normalized so the map's fractions sum to 1.0. Contribution maps need not
// be pre-normalized. When the plan carries no contribution map the source
// agent owns it fully.
func (p *Plan) ContributionFor(agent string, source string) float64 {
	if len(p.Contributions) == 0 {
		if agent == source {
			return 1.0
		}
		return 0
	}
	sum := 0.0
	for _, frac := range p.Contributions {
		sum += frac
	}
	if sum <= 0 {
		return 0
	}
	return p.Contributions[agent] / sum
}

// ContributingAgents returns the agents credited on this plan, falling back
// to the source agent when no contribution map is present.
func (p *Plan) ContributingAgents(source string) []string {
	if len(p.Contributions) == 0 {
		return []string{source}
	}
	agents := make([]string, 0, len(p.Contributions))
	for agent := range p.Contributions {
		agents = append(agents, agent)
	}
	return agents
}

// SubmittedPlan pairs a plan with the agent that submitted it.
type SubmittedPlan struct {
	Plan       Plan
	Source     string
	ReceivedAt time.Time
}
