package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is one WebSocket frame sent to clients.
type Message struct {
	Type string `json:"type"` // "progress" or "summary"
	Data any    `json:"data"`
}

// WebSocketHub fans run-progress messages out to every connected client.
type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	clientsMu  sync.RWMutex
	broadcast  chan Message
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	logger     *slog.Logger
}

func NewWebSocketHub(logger *slog.Logger) *WebSocketHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It owns the client set.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.done:
			h.clientsMu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.clientsMu.Unlock()
			return

		case conn := <-h.register:
			h.clientsMu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.clientsMu.Unlock()
			h.logger.Debug("websocket client connected", "total", total)

		case conn := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.clientsMu.Unlock()
			h.logger.Debug("websocket client disconnected", "total", total)

		case msg := <-h.broadcast:
			h.clientsMu.RLock()
			for conn := range h.clients {
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("websocket write failed", "error", err)
					go func(c *websocket.Conn) {
						h.unregister <- c
					}(conn)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Stop closes the hub and every connection.
func (h *WebSocketHub) Stop() {
	close(h.done)
}

// Broadcast queues a message for all clients, dropping it when the buffer
// is full so a slow consumer can never stall a run.
func (h *WebSocketHub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast buffer full, dropping message", "type", msg.Type)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.hub.register <- conn

	// Read loop exists only to detect the client going away.
	go func() {
		defer func() {
			s.hub.unregister <- conn
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
