package api

import (
	"testing"
	"time"
)

func TestSSEHubDeliversBroadcasts(t *testing.T) {
	h := NewSSEHub()
	go h.Run()

	sub := make(chan StreamEvent, 8)
	h.subscribe <- sub

	h.Broadcast(StreamEvent{Type: "pipeline_triggered"})

	select {
	case e := <-sub:
		if e.Type != "pipeline_triggered" {
			t.Errorf("Type = %q, want pipeline_triggered", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestSSEHubDropsSlowSubscriber(t *testing.T) {
	h := NewSSEHub()
	go h.Run()

	slow := make(chan StreamEvent, 1)
	h.subscribe <- slow

	// Nothing drains slow, so its buffer fills and the hub closes it.
	for i := 0; i < 3; i++ {
		h.broadcast <- StreamEvent{Type: "performance_summary"}
	}

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-slow:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("slow subscriber never dropped")
		}
	}
}

func TestSSEHubUnsubscribeIsIdempotent(t *testing.T) {
	h := NewSSEHub()
	go h.Run()

	sub := make(chan StreamEvent, 8)
	h.subscribe <- sub
	h.unsubscribe <- sub
	// A second unsubscribe for a channel the hub already closed must not
	// panic; the handler's deferred unsubscribe can race the slow-drop.
	h.unsubscribe <- sub

	if _, ok := <-sub; ok {
		t.Error("subscriber channel still open after unsubscribe")
	}
}
