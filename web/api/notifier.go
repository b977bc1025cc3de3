package api

import (
	"github.com/selfarchitectai/archon-core/internal/notify"
)

// StreamNotifier adapts the server's live event stream to the notify
// sink interface, so core loop events reach connected dashboards. It can
// be constructed before the server exists and bound later, which breaks
// the wiring cycle between the controller and the API.
type StreamNotifier struct {
	server *Server
}

// NewStreamNotifier creates an unbound notifier
func NewStreamNotifier() *StreamNotifier {
	return &StreamNotifier{}
}

// Bind attaches the notifier to a running server.
func (n *StreamNotifier) Bind(s *Server) {
	n.server = s
}

// Send broadcasts the event; it never fails. Events sent before Bind are
// dropped.
func (n *StreamNotifier) Send(e notify.Event) error {
	if n.server == nil {
		return nil
	}
	n.server.Broadcast(StreamEvent{
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		Data:      e,
	})
	return nil
}
