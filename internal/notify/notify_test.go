package notify

import (
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Send(e Event) error {
	r.events = append(r.events, e)
	return r.err
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiNotifier(a, b)

	e := Event{Type: EventPipelineTriggered, Message: "build started"}
	if err := m.Send(e); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}

func TestMultiNotifierKeepsGoingAfterFailure(t *testing.T) {
	failing := &recordingSink{err: errors.New("sink down")}
	healthy := &recordingSink{}
	m := NewMultiNotifier(failing, healthy)

	err := m.Send(Event{Type: EventSelfHealTriggered})
	if err == nil {
		t.Error("Send() = nil error, want failure surfaced")
	}
	if len(healthy.events) != 1 {
		t.Errorf("healthy sink got %d events, want 1", len(healthy.events))
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	sink := &recordingSink{}

	Emit(sink, Event{Type: EventPerformanceSummary})
	if len(sink.events) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(sink.events))
	}
	if sink.events[0].Timestamp.IsZero() {
		t.Error("Timestamp not stamped")
	}

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	Emit(sink, Event{Type: EventPerformanceSummary, Timestamp: fixed})
	if !sink.events[1].Timestamp.Equal(fixed) {
		t.Errorf("Timestamp = %v, want preserved %v", sink.events[1].Timestamp, fixed)
	}
}

func TestEmitSwallowsSinkError(t *testing.T) {
	// Emit must never propagate a delivery failure to the caller.
	Emit(&recordingSink{err: errors.New("unreachable")}, Event{Type: EventBuildFailurePersistent})
}
