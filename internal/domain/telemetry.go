package domain

import "time"

// BuildStatus is the observed outcome of a triggered build
type BuildStatus string

const (
	BuildSuccess BuildStatus = "success"
	BuildFailed  BuildStatus = "failed"
	BuildPending BuildStatus = "pending"
	BuildUnknown BuildStatus = "unknown"
)

// TelemetryRecord is one observed build outcome. Append-only.
type TelemetryRecord struct {
	ID         int64             `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	DecisionID string            `json:"decision_id,omitempty"`
	Status     BuildStatus       `json:"build_status"`
	LatencyMS  float64           `json:"latency_ms"`
	TokenUsage int               `json:"token_usage"`
	CostUSD    float64           `json:"cost_usd"`
	ErrorCount int               `json:"error_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TelemetrySummary aggregates telemetry across a requested window.
type TelemetrySummary struct {
	TotalBuilds  int     `json:"total_builds"`
	SuccessCount int     `json:"success_count"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalErrors  int     `json:"total_errors"`
}

// DailyMetrics is one calendar day's rolling aggregate.
type DailyMetrics struct {
	Date         string  `json:"date"`
	TotalBuilds  int     `json:"total_builds"`
	SuccessCount int     `json:"successful_builds"`
	FailureCount int     `json:"failed_builds"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalErrors  int     `json:"total_errors"`
}

// AgentPerformance is agent-level telemetry joined through decisions.
type AgentPerformance struct {
	AgentID          string  `json:"agent_id"`
	TotalBuilds      int     `json:"total_builds"`
	SuccessfulBuilds int     `json:"successful_builds"`
	SuccessRate      float64 `json:"success_rate"`
	AvgLatencyMS     float64 `json:"avg_latency_ms"`
	CurrentWeight    float64 `json:"current_weight"`
}

// WeightAdjustment is an append-only record of one trust weight mutation.
type WeightAdjustment struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	OldWeight float64   `json:"old_weight"`
	NewWeight float64   `json:"new_weight"`
	Reason    string    `json:"reason"`
}
