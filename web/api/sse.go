package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StreamEvent is one live event pushed to SSE and websocket clients.
type StreamEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// SSEHub fans live events out to event-stream subscribers. Like the
// websocket hub, the run goroutine owns the subscriber map and slow
// subscribers are dropped rather than allowed to back up the broadcast.
type SSEHub struct {
	subscribers map[chan StreamEvent]struct{}
	broadcast   chan StreamEvent
	subscribe   chan chan StreamEvent
	unsubscribe chan chan StreamEvent
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{
		subscribers: make(map[chan StreamEvent]struct{}),
		broadcast:   make(chan StreamEvent, 16),
		subscribe:   make(chan chan StreamEvent),
		unsubscribe: make(chan chan StreamEvent),
	}
}

// Run starts the SSE hub
func (h *SSEHub) Run() {
	for {
		select {
		case sub := <-h.subscribe:
			h.subscribers[sub] = struct{}{}

		case sub := <-h.unsubscribe:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub)
			}

		case event := <-h.broadcast:
			for sub := range h.subscribers {
				select {
				case sub <- event:
				default:
					delete(h.subscribers, sub)
					close(sub)
				}
			}
		}
	}
}

// Broadcast sends an event to all subscribers.
func (h *SSEHub) Broadcast(event StreamEvent) {
	select {
	case h.broadcast <- event:
	default:
		// Hub is saturated; live stream is best effort.
	}
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		sub := make(chan StreamEvent, 8)
		s.sseHub.subscribe <- sub
		defer func() { s.sseHub.unsubscribe <- sub }()

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-sub:
				if !ok {
					// Dropped by the hub for falling behind.
					return
				}
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
				flusher.Flush()
			}
		}
	}
}
