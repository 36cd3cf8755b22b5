package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/seoscan/internal/common"
	"github.com/ternarybob/seoscan/internal/interfaces"
	"github.com/ternarybob/seoscan/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler pushes live task events to connected clients. Each
// connection holds its own bus subscription, so a slow client only loses its
// own events.
type WebSocketHandler struct {
	events       interfaces.TaskEventService
	logger       arbor.ILogger
	writeTimeout time.Duration
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(events interfaces.TaskEventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	writeTimeout := 5 * time.Second
	if config != nil && config.WriteTimeoutMs > 0 {
		writeTimeout = time.Duration(config.WriteTimeoutMs) * time.Millisecond
	}
	return &WebSocketHandler{
		events:       events,
		logger:       logger,
		writeTimeout: writeTimeout,
	}
}

type wsMessage struct {
	Type   string              `json:"type"`
	Events []*models.TaskEvent `json:"events,omitempty"`
	Event  *models.TaskEvent   `json:"event,omitempty"`
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	ch, cancel := h.events.Subscribe()

	done := make(chan struct{})
	common.SafeGo(h.logger, "ws-reader", func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	defer cancel()
	defer conn.Close()

	// GetRecent is already chronological, oldest of the window first
	recent, err := h.events.GetRecent(context.Background(), recentEventsOnConnect)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to load recent events for WebSocket client")
	}
	init := wsMessage{Type: "init", Events: recent}
	if err := h.writeMessage(conn, &init); err != nil {
		return
	}

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return

		case event, open := <-ch:
			if !open {
				return
			}
			if err := h.writeMessage(conn, &wsMessage{Type: "event", Event: event}); err != nil {
				h.logger.Debug().Err(err).Msg("WebSocket client disconnected")
				return
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) writeMessage(conn *websocket.Conn, msg *wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return conn.WriteJSON(msg)
}
