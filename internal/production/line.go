// Package production drives the build/test/deploy cycle: it consumes
// approved decisions, triggers external builds, monitors outcomes, and
// self-heals from failures with bounded retries before escalating.
package production

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/selfarchitectai/archon-core/internal/dispatch"
	"github.com/selfarchitectai/archon-core/internal/domain"
	"github.com/selfarchitectai/archon-core/internal/notify"
)

// Config tunes the controller. Zero values are filled with the documented
// defaults.
type Config struct {
	MaxRetries              int
	RetryDelay              time.Duration
	RetryBackoffDoubling    bool
	SuccessSummaryThreshold int
	PollInterval            time.Duration
	PollTimeout             time.Duration
	IdleWait                time.Duration
	SummaryWindowDays       int
	Target                  string
}

func (c *Config) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 60 * time.Second
	}
	if c.SuccessSummaryThreshold == 0 {
		c.SuccessSummaryThreshold = 3
	}
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 300 * time.Second
	}
	if c.IdleWait == 0 {
		c.IdleWait = 30 * time.Second
	}
	if c.SummaryWindowDays == 0 {
		c.SummaryWindowDays = 7
	}
	if c.Target == "" {
		c.Target = "production"
	}
}

// ApprovedSource supplies the next approved decision waiting for execution,
// or nil when none is pending.
type ApprovedSource interface {
	NextApprovedDecision() (*domain.Decision, error)
}

// CycleRepo persists production cycles.
type CycleRepo interface {
	SaveCycle(c *domain.ProductionCycle) error
	ArchiveOpenCycles(at time.Time) error
}

// DecisionTransitioner moves decisions through their status graph.
type DecisionTransitioner interface {
	TransitionDecision(id string, to domain.DecisionStatus) error
}

// TelemetryProcessor routes build outcomes into the feedback loop.
type TelemetryProcessor interface {
	ProcessTelemetry(rec *domain.TelemetryRecord) error
}

// StatsSource supplies the aggregates a performance summary reports.
type StatsSource interface {
	SummaryWindow(days int) (domain.TelemetrySummary, error)
	DecisionStats(window time.Duration) (total, completed int, avgTrust float64, err error)
}

// Controller is the production line state machine. One controller drives
// one active cycle at a time.
type Controller struct {
	cfg       Config
	trigger   dispatch.BuildTrigger
	poller    dispatch.OutcomePoller
	source    ApprovedSource
	cycles    CycleRepo
	decisions DecisionTransitioner
	feedback  TelemetryProcessor
	stats     StatsSource
	notifier  notify.Notifier

	cycle   *domain.ProductionCycle
	resetCh chan struct{}

	// mu guards halted and the streak counters. Reset may arrive from
	// another goroutine (CLI, API) while the control loop is mid-retry.
	mu                   sync.Mutex
	halted               bool
	consecutiveSuccesses int
	consecutiveFailures  int
}

// NewController wires the production line to its collaborators.
func NewController(cfg Config, trigger dispatch.BuildTrigger, poller dispatch.OutcomePoller,
	source ApprovedSource, cycles CycleRepo, decisions DecisionTransitioner,
	feedback TelemetryProcessor, stats StatsSource, notifier notify.Notifier) *Controller {
	cfg.applyDefaults()
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Controller{
		cfg:       cfg,
		trigger:   trigger,
		poller:    poller,
		source:    source,
		cycles:    cycles,
		decisions: decisions,
		feedback:  feedback,
		stats:     stats,
		notifier:  notifier,
		resetCh:   make(chan struct{}, 1),
	}
}

// StartCycle archives any open cycle and begins a fresh one in idle state.
func (c *Controller) StartCycle() (*domain.ProductionCycle, error) {
	now := time.Now().UTC()
	if err := c.cycles.ArchiveOpenCycles(now); err != nil {
		return nil, err
	}

	c.cycle = &domain.ProductionCycle{
		ID:        fmt.Sprintf("cycle-%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8]),
		StartedAt: now,
		State:     domain.CycleIdle,
	}
	if err := c.cycles.SaveCycle(c.cycle); err != nil {
		return nil, err
	}
	log.Printf("production: cycle %s started", c.cycle.ID)
	return c.cycle, nil
}

// Cycle returns the active cycle, or nil before StartCycle.
func (c *Controller) Cycle() *domain.ProductionCycle {
	return c.cycle
}

// Halted reports whether automatic retries are stopped pending manual
// intervention.
func (c *Controller) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

func (c *Controller) setHalted(v bool) {
	c.mu.Lock()
	c.halted = v
	c.mu.Unlock()
}

// Reset clears a persistent-failure halt so automatic retries resume.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.halted = false
	c.consecutiveFailures = 0
	c.mu.Unlock()
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// setState validates and commits a cycle state change.
func (c *Controller) setState(to domain.CycleState) error {
	if err := domain.ValidateCycleTransition(c.cycle.ID, c.cycle.State, to); err != nil {
		return err
	}
	c.cycle.State = to
	return c.cycles.SaveCycle(c.cycle)
}

// RunContinuous polls the approved-decision source and executes builds
// until ctx is cancelled or maxIterations is reached (0 means unbounded).
func (c *Controller) RunContinuous(ctx context.Context, maxIterations int) error {
	if c.cycle == nil {
		if _, err := c.StartCycle(); err != nil {
			return err
		}
	}

	for iteration := 0; maxIterations == 0 || iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return nil
		}

		if c.Halted() {
			if !c.awaitReset(ctx) {
				return nil
			}
			continue
		}

		decision, err := c.source.NextApprovedDecision()
		if err != nil {
			log.Printf("production: polling approved decisions: %v", err)
			if !c.wait(ctx, c.cfg.IdleWait) {
				return nil
			}
			continue
		}
		if decision == nil {
			if !c.wait(ctx, c.cfg.IdleWait) {
				return nil
			}
			continue
		}

		if err := c.ExecuteDecision(ctx, decision); err != nil {
			log.Printf("production: executing %s: %v", decision.ID, err)
		}
	}
	return nil
}

// ExecuteDecision runs the build loop for one approved decision, retrying
// through self-healing until it succeeds, retries are exhausted, or ctx is
// cancelled. The decision moves approved -> executing immediately and
// reaches completed or failed exactly once.
func (c *Controller) ExecuteDecision(ctx context.Context, decision *domain.Decision) error {
	if c.cycle == nil {
		if _, err := c.StartCycle(); err != nil {
			return err
		}
	}

	if err := c.decisions.TransitionDecision(decision.ID, domain.DecisionExecuting); err != nil {
		return err
	}

	attempt := 0
	for {
		attempt++
		if err := c.setState(domain.CycleBuilding); err != nil {
			return err
		}
		c.cycle.BuildCount++
		if err := c.cycles.SaveCycle(c.cycle); err != nil {
			return err
		}

		start := time.Now()
		log.Printf("production: build #%d for %s (attempt %d)", c.cycle.BuildCount, decision.ID, attempt)

		err := c.trigger.Trigger(ctx, dispatch.TriggerRequest{
			DecisionID:  decision.ID,
			Target:      c.cfg.Target,
			Description: fmt.Sprintf("ARCHON build: %s", decision.ID),
			TrustScore:  decision.TrustScore,
			TriggeredBy: "production-line",
		})
		if err != nil {
			// A rejected dispatch counts as a build failure.
			if serr := c.setState(domain.CycleFailed); serr != nil {
				return serr
			}
			if done := c.handleFailure(ctx, decision, err.Error(), c.latencyMS(start)); done {
				return nil
			}
			continue
		}

		notify.Emit(c.notifier, notify.Event{
			Type:       notify.EventPipelineTriggered,
			DecisionID: decision.ID,
			CycleID:    c.cycle.ID,
			Source:     decision.Source,
			Message:    fmt.Sprintf("build triggered (trust %.4f)", decision.TrustScore),
		})

		if err := c.setState(domain.CycleTesting); err != nil {
			return err
		}

		status := c.monitor(ctx, decision.ID)
		latency := c.latencyMS(start)

		switch status {
		case domain.BuildSuccess:
			if err := c.setState(domain.CycleSuccess); err != nil {
				return err
			}
			c.handleSuccess(decision, latency)
			return nil
		case domain.BuildFailed:
			if serr := c.setState(domain.CycleFailed); serr != nil {
				return serr
			}
			if done := c.handleFailure(ctx, decision, "build failed", latency); done {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			if serr := c.setState(domain.CycleFailed); serr != nil {
				return serr
			}
			if done := c.handleFailure(ctx, decision, "timeout", latency); done {
				return nil
			}
		}
	}
}

// monitor polls the outcome collaborator until it reports a terminal
// status or the poll timeout elapses. Transient poll errors are retried
// within the window. Returns BuildUnknown on timeout or cancellation.
func (c *Controller) monitor(ctx context.Context, decisionID string) domain.BuildStatus {
	deadline := time.NewTimer(c.cfg.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.poller.Poll(ctx, decisionID)
		if err != nil {
			log.Printf("production: poll for %s: %v", decisionID, err)
		} else if status == domain.BuildSuccess || status == domain.BuildFailed {
			return status
		}

		select {
		case <-ctx.Done():
			return domain.BuildUnknown
		case <-deadline.C:
			return domain.BuildUnknown
		case <-ticker.C:
		}
	}
}

func (c *Controller) handleSuccess(decision *domain.Decision, latencyMS float64) {
	c.cycle.SuccessCount++
	c.cycle.LastError = ""
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.consecutiveSuccesses++
	successes := c.consecutiveSuccesses
	c.mu.Unlock()
	if err := c.cycles.SaveCycle(c.cycle); err != nil {
		log.Printf("production: saving cycle: %v", err)
	}

	if err := c.decisions.TransitionDecision(decision.ID, domain.DecisionCompleted); err != nil {
		log.Printf("production: completing %s: %v", decision.ID, err)
	}
	c.recordTelemetry(decision, domain.BuildSuccess, latencyMS, "")

	log.Printf("production: build succeeded (%d consecutive)", successes)

	if successes >= c.cfg.SuccessSummaryThreshold {
		c.emitSummary()
		c.mu.Lock()
		c.consecutiveSuccesses = 0
		c.mu.Unlock()
	}
}

// handleFailure updates counters and either schedules a self-healing retry
// (returning false so the build loop continues) or escalates to a single
// persistent-failure alert and halts (returning true).
func (c *Controller) handleFailure(ctx context.Context, decision *domain.Decision, reason string, latencyMS float64) (done bool) {
	c.cycle.FailureCount++
	c.cycle.LastError = reason
	c.mu.Lock()
	c.consecutiveSuccesses = 0
	c.consecutiveFailures++
	failures := c.consecutiveFailures
	c.mu.Unlock()
	if err := c.cycles.SaveCycle(c.cycle); err != nil {
		log.Printf("production: saving cycle: %v", err)
	}

	c.recordTelemetry(decision, domain.BuildFailed, latencyMS, reason)
	log.Printf("production: build failed (%d consecutive): %s", failures, reason)

	if failures >= c.cfg.MaxRetries {
		if err := c.decisions.TransitionDecision(decision.ID, domain.DecisionFailed); err != nil {
			log.Printf("production: failing %s: %v", decision.ID, err)
		}
		c.setHalted(true)
		notify.Emit(c.notifier, notify.Event{
			Type:       notify.EventBuildFailurePersistent,
			DecisionID: decision.ID,
			CycleID:    c.cycle.ID,
			Message:    fmt.Sprintf("max retries (%d) reached, manual intervention required: %s", c.cfg.MaxRetries, reason),
		})
		return true
	}

	if err := c.setState(domain.CycleSelfHealing); err != nil {
		log.Printf("production: entering self-healing: %v", err)
	}

	delay := c.cfg.RetryDelay
	if c.cfg.RetryBackoffDoubling {
		for i := 1; i < failures; i++ {
			delay *= 2
		}
	}

	notify.Emit(c.notifier, notify.Event{
		Type:       notify.EventSelfHealTriggered,
		DecisionID: decision.ID,
		CycleID:    c.cycle.ID,
		Message:    fmt.Sprintf("self-healing attempt %d, retrying in %s", failures, delay),
	})

	if !c.wait(ctx, delay) {
		return true // Shutdown during backoff; leave the decision executing.
	}
	return false
}

func (c *Controller) recordTelemetry(decision *domain.Decision, status domain.BuildStatus, latencyMS float64, reason string) {
	rec := &domain.TelemetryRecord{
		Timestamp:  time.Now().UTC(),
		DecisionID: decision.ID,
		Status:     status,
		LatencyMS:  latencyMS,
		CostUSD:    decision.Plan.CostEstimate(),
		TokenUsage: decision.Plan.TokensEstimate(),
	}
	if reason != "" {
		rec.ErrorCount = 1
		rec.Metadata = map[string]string{"reason": reason}
	}
	if err := c.feedback.ProcessTelemetry(rec); err != nil {
		log.Printf("production: processing telemetry for %s: %v", decision.ID, err)
	}
}

func (c *Controller) emitSummary() {
	summary, err := c.stats.SummaryWindow(c.cfg.SummaryWindowDays)
	if err != nil {
		log.Printf("production: building summary: %v", err)
		return
	}
	_, _, avgTrust, err := c.stats.DecisionStats(time.Duration(c.cfg.SummaryWindowDays) * 24 * time.Hour)
	if err != nil {
		log.Printf("production: summary trust stats: %v", err)
	}

	notify.Emit(c.notifier, notify.Event{
		Type:    notify.EventPerformanceSummary,
		CycleID: c.cycle.ID,
		Message: fmt.Sprintf("%s builds, %.0f%% success, avg latency %.0fms, $%s total cost",
			humanize.Comma(int64(summary.TotalBuilds)), summary.SuccessRate*100,
			summary.AvgLatencyMS, humanize.FtoaWithDigits(summary.TotalCostUSD, 2)),
		Data: map[string]any{
			"total_builds":    summary.TotalBuilds,
			"success_count":   summary.SuccessCount,
			"success_rate":    summary.SuccessRate,
			"avg_latency_ms":  summary.AvgLatencyMS,
			"total_cost_usd":  summary.TotalCostUSD,
			"avg_trust_score": avgTrust,
		},
	})
}

// wait sleeps for d but returns early (false) when ctx is cancelled.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// awaitReset blocks until an external reset signal or cancellation.
func (c *Controller) awaitReset(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.resetCh:
		return true
	}
}

func (c *Controller) latencyMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
