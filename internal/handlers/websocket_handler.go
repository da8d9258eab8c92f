package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"device-ingest/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"
)

const (
	pingInterval  = 30 * time.Second
	writeDeadline = 10 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

// WebSocketHandler fans device updates out to dashboard connections.
type WebSocketHandler struct {
	upgrader   websocket.Upgrader
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	stopped    chan struct{}
	log        *slog.Logger
}

func NewWebSocketHandler(log *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stopped:    make(chan struct{}),
		log:        log.With("component", "websocket"),
	}
}

func (h *WebSocketHandler) HandleConnections(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote_addr", c.Request.RemoteAddr, "error", err)
		return
	}
	client := &wsClient{conn: ws}
	select {
	case h.register <- client:
	case <-h.stopped:
		ws.Close()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.handleClientMessages(client)
	}()

	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		select {
		case h.unregister <- client:
		case <-h.stopped:
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				h.log.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleClientMessages(client *wsClient) {
	for {
		var msg map[string]interface{}
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}

		var response map[string]interface{}
		switch msg["type"] {
		case "subscribe":
			response = map[string]interface{}{
				"type":      "subscribed",
				"message":   "Subscribed to device updates",
				"timestamp": time.Now().Unix(),
			}
		case "ping":
			response = map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			}
		default:
			response = map[string]interface{}{
				"type":      "error",
				"message":   "Unknown message type",
				"timestamp": time.Now().Unix(),
			}
		}
		if err := client.writeJSON(response); err != nil {
			return
		}
	}
}

// RunHub owns the client set until ctx is cancelled.
func (h *WebSocketHandler) RunHub(ctx context.Context) {
	h.log.Info("starting websocket hub")
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.conn.Close()
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("client registered", "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
				h.log.Debug("client unregistered", "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.write(websocket.TextMessage, message); err != nil {
					h.log.Debug("broadcast failed, dropping client", "error", err)
					client.conn.Close()
					delete(h.clients, client)
				}
			}
		}
	}
}

// BroadcastUpdate queues update for every connected client. Updates are
// dropped when the hub is saturated.
func (h *WebSocketHandler) BroadcastUpdate(update cache.Update) {
	message := map[string]interface{}{
		"type":      "device_update",
		"device_id": update.DeviceID,
		"data":      update,
		"timestamp": time.Now().Unix(),
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal broadcast message", "error", err)
		return
	}

	select {
	case h.broadcast <- jsonData:
	default:
		h.log.Warn("websocket broadcast queue full, update dropped", "device_id", update.DeviceID)
	}
}
