package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names on the real-time channel.
const (
	EventKeypress = "keypress"
	EventAlert    = "alert"
)

// Message is the JSON envelope exchanged over the websocket.
type Message struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Hub is the explicit connection registry for the real-time channel: one
// connection per browser tab, added on upgrade and removed on disconnect.
// There is no authentication and no replay; a client not connected when an
// alert fires never receives it.
type Hub struct {
	mu           sync.Mutex
	clients      map[*websocket.Conn]struct{}
	logger       *slog.Logger
	onKeypress   func(token string)
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewHub creates a hub; onKeypress is invoked for every movement token a
// client sends.
func NewHub(logger *slog.Logger, onKeypress func(token string)) *Hub {
	return &Hub{
		clients:      make(map[*websocket.Conn]struct{}),
		logger:       logger,
		onKeypress:   onKeypress,
		writeTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			// The station serves a single trusted crew on a local network.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the request and pumps inbound events until the client
// goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	h.add(conn)
	defer h.remove(conn)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msg.Event == EventKeypress && h.onKeypress != nil {
			h.onKeypress(msg.Data)
		}
	}
}

// Broadcast delivers one event to every connected client. Delivery is
// best-effort: a client whose write fails is closed and dropped. Writes
// happen under the registry lock, which also serializes concurrent
// broadcasts per connection.
func (h *Hub) Broadcast(event, data string) {
	msg := Message{Event: event, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		// Writes happen under the registry lock, so a peer with a full
		// send buffer must fail the write rather than hold the lock
		// and wedge every other broadcast and registration.
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Warn("dropping websocket client", "error", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "remote", conn.RemoteAddr())
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
	h.logger.Info("websocket client disconnected", "remote", conn.RemoteAddr())
}
