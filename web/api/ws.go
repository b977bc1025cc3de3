package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSHub fans live events out to websocket clients. Slow clients are
// dropped rather than allowed to back up the broadcast.
type WSHub struct {
	clients    map[*websocket.Conn]chan StreamEvent
	broadcast  chan StreamEvent
	register   chan *wsClient
	unregister chan *websocket.Conn
	mu         sync.Mutex
}

type wsClient struct {
	conn *websocket.Conn
	send chan StreamEvent
}

// NewWSHub creates a new websocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]chan StreamEvent),
		broadcast:  make(chan StreamEvent, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the websocket hub
func (h *WSHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client.send
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if send, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for conn, send := range h.clients {
				select {
				case send <- event:
				default:
					delete(h.clients, conn)
					close(send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to all connected clients.
func (h *WSHub) Broadcast(event StreamEvent) {
	select {
	case h.broadcast <- event:
	default:
		// Hub is saturated; live stream is best effort.
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("api: websocket upgrade failed: %v", err)
			return
		}

		client := &wsClient{conn: conn, send: make(chan StreamEvent, 8)}
		s.wsHub.register <- client

		// Reader goroutine: we never expect client messages, but reading
		// is how we notice the peer closing.
		go func() {
			defer func() {
				s.wsHub.unregister <- conn
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		go func() {
			for event := range client.send {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(event); err != nil {
					conn.Close()
					return
				}
			}
		}()
	}
}
