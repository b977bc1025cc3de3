package notify

import (
	"log"
	"time"
)

// EventType identifies the kind of event pushed to downstream sinks
type EventType string

const (
	EventPipelineTriggered      EventType = "pipeline_triggered"
	EventBuildFailurePersistent EventType = "build_failure_persistent"
	EventPerformanceSummary     EventType = "performance_summary"
	EventSelfHealTriggered      EventType = "self_heal_triggered"
)

// Event is a structured notification for downstream dashboards and alerting.
// Delivery is best-effort: sinks must never block or fail the core loop.
type Event struct {
	Type       EventType      `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	DecisionID string         `json:"decision_id,omitempty"`
	CycleID    string         `json:"cycle_id,omitempty"`
	Source     string         `json:"source,omitempty"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(e Event) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the event to all notifiers
func (m *MultiNotifier) Send(e Event) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(e); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(e Event) error { return nil }

// Emit delivers an event and logs any delivery failure without surfacing it.
func Emit(n Notifier, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if err := n.Send(e); err != nil {
		log.Printf("notify: %s delivery failed: %v", e.Type, err)
	}
}
