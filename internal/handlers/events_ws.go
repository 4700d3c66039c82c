package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pulsewatch/pulsewatch/internal/engine"
)

var eventsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the surrounding middleware
	},
}

// EventHub fans pipeline events out to connected websocket clients. It
// implements engine.EventSink; a slow or dead client is dropped rather than
// allowed to stall the pipeline.
type EventHub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan engine.Event
}

// NewEventHub creates an event hub
func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*websocket.Conn]chan engine.Event)}
}

// SetupRoutes registers the live event feed endpoint
func (h *EventHub) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/events", h.handleEvents)
}

// Publish implements engine.EventSink
func (h *EventHub) Publish(event engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, ch := range h.clients {
		select {
		case ch <- event:
		default:
			log.Printf("EventHub: dropping slow client %s", conn.RemoteAddr())
			go h.remove(conn)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleEvents handles GET /ws/events
func (h *EventHub) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := eventsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("EventHub: websocket upgrade failed: %v", err)
		return
	}

	ch := make(chan engine.Event, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	log.Printf("EventHub: client connected from %s", conn.RemoteAddr())

	go h.writeLoop(conn, ch)
	h.readLoop(conn)
}

// writeLoop pushes events and periodic pings to one client
func (h *EventHub) writeLoop(conn *websocket.Conn, ch chan engine.Event) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				h.remove(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(conn)
				return
			}
		}
	}
}

// readLoop drains client frames until the connection closes. Clients only
// listen; anything they send beyond control frames is discarded.
func (h *EventHub) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

func (h *EventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()

	if ok {
		conn.Close()
		log.Printf("EventHub: client %s disconnected", conn.RemoteAddr())
	}
}
