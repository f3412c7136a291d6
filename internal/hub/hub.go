// Package hub pushes task snapshots to connected websocket viewers.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch-watch/internal/eventbus"
	"dispatch-watch/internal/logging"
	"dispatch-watch/internal/models"
)

// EventUpdateData names the snapshot message.
const EventUpdateData = "updateData"

const writeWait = 10 * time.Second

// Source provides the current snapshot and can kick off a refresh.
type Source interface {
	Snapshot() []models.Task
	TriggerAsync(reason string)
}

type message struct {
	Event string        `json:"event"`
	Data  []models.Task `json:"data"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub manages viewer connections.
type Hub struct {
	source     Source
	bus        *eventbus.Bus
	logger     *logging.Logger
	maxViewers int
	upgrader   websocket.Upgrader
	subID      string
	updates    <-chan []models.Task

	mutex   sync.Mutex
	clients map[*websocket.Conn]*client
}

func New(source Source, bus *eventbus.Bus, logger *logging.Logger, maxViewers int) *Hub {
	subID, updates := bus.Subscribe(4)
	return &Hub{
		source:     source,
		bus:        bus,
		logger:     logger,
		maxViewers: maxViewers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		subID:   subID,
		updates: updates,
		clients: make(map[*websocket.Conn]*client),
	}
}

// Run forwards every published snapshot to all viewers until ctx is done,
// then closes the remaining connections.
func (h *Hub) Run(ctx context.Context) {
	defer h.bus.Unsubscribe(h.subID)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case snap, ok := <-h.updates:
			if !ok {
				return
			}
			h.Broadcast(snap)
		}
	}
}

// ServeWS upgrades the request and streams snapshots to the viewer.
func (h *Hub) ServeWS(c *gin.Context) {
	if h.maxViewers > 0 && h.Count() >= h.maxViewers {
		h.logger.Warnf("Max viewers reached (%d), rejecting %s", h.maxViewers, c.ClientIP())
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Too many viewers"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	cl := h.add(conn)

	snap := h.source.Snapshot()
	if len(snap) == 0 {
		h.source.TriggerAsync("viewer connect")
	}
	if payload, err := encode(snap); err == nil {
		if err := cl.write(payload); err != nil {
			h.logger.Errorf("Failed to send initial snapshot: %v", err)
			h.remove(conn)
			return
		}
	}

	// Viewers never send anything we act on; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return
		}
	}
}

// Broadcast sends snap to every viewer, dropping those that fail.
func (h *Hub) Broadcast(snap []models.Task) {
	payload, err := encode(snap)
	if err != nil {
		h.logger.Errorf("Failed to encode snapshot: %v", err)
		return
	}

	h.mutex.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mutex.Unlock()

	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			h.logger.Errorf("Failed to send WebSocket message: %v", err)
			h.remove(cl.conn)
		}
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) *client {
	cl := &client{conn: conn}
	h.mutex.Lock()
	h.clients[conn] = cl
	total := len(h.clients)
	h.mutex.Unlock()
	h.logger.Infof("Viewer connected (total: %d)", total)
	return cl
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mutex.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	remaining := len(h.clients)
	h.mutex.Unlock()
	if ok {
		_ = conn.Close()
		h.logger.Infof("Viewer disconnected (remaining: %d)", remaining)
	}
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	clients := h.clients
	h.clients = make(map[*websocket.Conn]*client)
	h.mutex.Unlock()
	for conn, cl := range clients {
		cl.mu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		cl.mu.Unlock()
		_ = conn.Close()
	}
}

func encode(snap []models.Task) ([]byte, error) {
	if snap == nil {
		snap = []models.Task{}
	}
	return json.Marshal(message{Event: EventUpdateData, Data: snap})
}
