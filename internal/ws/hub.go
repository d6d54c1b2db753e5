// Package ws pushes match notifications to the affected users over private
// websocket channels.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/openspot/exchange/internal/exchange"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks connected clients per user id. A user may hold several
// connections; a notification goes to all of them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[int]map[*client]bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[int]map[*client]bool),
	}
}

// HandleWS upgrades the request and parks the connection on the user's
// private channel until the peer goes away. The caller must have
// authenticated the request and resolved userID.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, userID int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &client{conn: conn}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]bool)
	}
	h.clients[userID][c] = true
	h.mu.Unlock()

	// Drain the connection; any read error means the peer is gone.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients[userID], c)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
	h.mu.Unlock()
	conn.Close()
}

// matchPayload is the wire shape of an OrderMatched push.
type matchPayload struct {
	Event string `json:"event"`
	exchange.MatchNotification
}

// NotifyMatch implements exchange.MatchNotifier. Delivery is best-effort;
// a failed write drops that connection's message and nothing else.
func (h *Hub) NotifyMatch(ctx context.Context, n exchange.MatchNotification) {
	data, err := json.Marshal(matchPayload{Event: "OrderMatched", MatchNotification: n})
	if err != nil {
		h.logger.Error("failed to marshal match notification", "error", err)
		return
	}

	h.send(n.BuyOrder.UserID, data)
	if n.SellOrder.UserID != n.BuyOrder.UserID {
		h.send(n.SellOrder.UserID, data)
	}
}

func (h *Hub) send(userID int, data []byte) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.logger.Error("failed to push notification",
				"user_id", userID, "error", err)
		}
	}
}
