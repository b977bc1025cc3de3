// Package telemetry aggregates observed build outcomes into rolling daily
// metrics and agent-level performance, closing the feedback loop for
// scoring.
package telemetry

import (
	"time"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// Store is the persistence surface the collector needs.
type Store interface {
	InsertTelemetry(rec *domain.TelemetryRecord) (int64, error)
	RecentTelemetry(limit int) ([]*domain.TelemetryRecord, error)
	SummaryWindow(days int) (domain.TelemetrySummary, error)
	DailyStats(days int) ([]domain.DailyMetrics, error)
	AgentPerformance() (map[string]domain.AgentPerformance, error)
}

// WeightSource annotates per-agent performance with current trust weights.
type WeightSource interface {
	Weight(agent string) float64
}

// Collector ingests telemetry records and serves windowed aggregates.
type Collector struct {
	store   Store
	weights WeightSource
}

// NewCollector creates a collector over the given store
func NewCollector(store Store, weights WeightSource) *Collector {
	return &Collector{store: store, weights: weights}
}

// Ingest appends a record and updates the daily rolling aggregate.
func (c *Collector) Ingest(rec *domain.TelemetryRecord) (int64, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = domain.BuildUnknown
	}
	return c.store.InsertTelemetry(rec)
}

// Summary aggregates the daily rows across a trailing window.
func (c *Collector) Summary(windowDays int) (domain.TelemetrySummary, error) {
	return c.store.SummaryWindow(windowDays)
}

// Daily returns per-day aggregates for the past N days.
func (c *Collector) Daily(days int) ([]domain.DailyMetrics, error) {
	return c.store.DailyStats(days)
}

// Recent returns the most recent raw records.
func (c *Collector) Recent(limit int) ([]*domain.TelemetryRecord, error) {
	return c.store.RecentTelemetry(limit)
}

// PerAgentPerformance joins telemetry to decisions and annotates each agent
// with its current trust weight.
func (c *Collector) PerAgentPerformance() (map[string]domain.AgentPerformance, error) {
	perf, err := c.store.AgentPerformance()
	if err != nil {
		return nil, err
	}
	for agent, p := range perf {
		p.CurrentWeight = c.weights.Weight(agent)
		perf[agent] = p
	}
	return perf, nil
}
