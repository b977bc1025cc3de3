// Package optimizer periodically recomputes the trust weight book from
// accumulated agent performance, replacing the incremental per-outcome
// drift with a wholesale reallocation.
package optimizer

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/selfarchitectai/archon-core/internal/domain"
)

// PerformanceSource supplies per-agent build performance.
type PerformanceSource interface {
	PerAgentPerformance() (map[string]domain.AgentPerformance, error)
}

// WeightSetter commits a wholesale weight replacement.
type WeightSetter interface {
	Current() map[string]float64
	SetWeights(weights map[string]float64, reason string) error
}

// minBuildsForSignal is how many builds an agent needs before its success
// rate outweighs its incumbent allocation.
const minBuildsForSignal = 5

// Optimizer reallocates trust weights on a cron schedule.
type Optimizer struct {
	schedule cron.Schedule
	expr     string
	perf     PerformanceSource
	weights  WeightSetter

	mu      sync.Mutex
	lastRun time.Time
}

// New parses the cron expression and wires the optimizer to its sources.
func New(cronExpr string, perf PerformanceSource, weights WeightSetter) (*Optimizer, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parsing optimizer cron %q: %w", cronExpr, err)
	}
	return &Optimizer{schedule: schedule, expr: cronExpr, perf: perf, weights: weights}, nil
}

// NextRun returns the next scheduled recomputation time
func (o *Optimizer) NextRun() time.Time {
	o.mu.Lock()
	last := o.lastRun
	o.mu.Unlock()

	if last.IsZero() {
		last = time.Now()
	}
	return o.schedule.Next(last)
}

// ShouldRun reports whether a scheduled run is due.
func (o *Optimizer) ShouldRun(now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	last := o.lastRun
	if last.IsZero() {
		last = now.Add(-24 * time.Hour)
	}
	return now.After(o.schedule.Next(last))
}

// Run executes one recomputation and stamps the run time.
func (o *Optimizer) Run() error {
	o.mu.Lock()
	o.lastRun = time.Now()
	o.mu.Unlock()

	proposal, err := o.Propose()
	if err != nil {
		return err
	}
	if len(proposal) == 0 {
		log.Printf("optimizer: no agents with recorded builds, keeping current weights")
		return nil
	}

	if err := o.weights.SetWeights(proposal, "scheduled optimization"); err != nil {
		return fmt.Errorf("committing optimized weights: %w", err)
	}
	log.Printf("optimizer: reallocated weights across %d agents", len(proposal))
	return nil
}

// Propose computes a new allocation without committing it. Each agent's
// share blends its incumbent weight with its observed success rate; the
// performance signal only takes over once the agent has enough builds
// behind it.
func (o *Optimizer) Propose() (map[string]float64, error) {
	perf, err := o.perf.PerAgentPerformance()
	if err != nil {
		return nil, fmt.Errorf("loading agent performance: %w", err)
	}

	current := o.weights.Current()

	agents := make(map[string]struct{})
	for agent := range current {
		agents[agent] = struct{}{}
	}
	for agent := range perf {
		agents[agent] = struct{}{}
	}
	if len(agents) == 0 {
		return nil, nil
	}

	proposal := make(map[string]float64, len(agents))
	for agent := range agents {
		incumbent, ok := current[agent]
		if !ok {
			incumbent = 0.10
		}

		p, measured := perf[agent]
		if !measured || p.TotalBuilds == 0 {
			proposal[agent] = incumbent
			continue
		}

		confidence := float64(p.TotalBuilds) / float64(p.TotalBuilds+minBuildsForSignal)
		proposal[agent] = incumbent*(1-confidence) + p.SuccessRate*confidence
	}

	return proposal, nil
}

// Loop runs the scheduler until the channel closes, checking once a
// minute whether a run is due.
func (o *Optimizer) Loop(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if !o.ShouldRun(now) {
				continue
			}
			if err := o.Run(); err != nil {
				log.Printf("optimizer: run failed: %v", err)
			}
		}
	}
}
