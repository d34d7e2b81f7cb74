package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PTSolns/ptsolns-ide/backend/internal/domain/notify"
	"github.com/PTSolns/ptsolns-ide/backend/internal/infrastructure/logging"
	"github.com/PTSolns/ptsolns-ide/backend/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Source hands out listener subscriptions
type Source interface {
	Subscribe(buffer int) *notify.Subscription
}

// message is a client request
type message struct {
	Type string `json:"type"`
}

// Handler streams broadcaster events to WebSocket clients
type Handler struct {
	source   Source
	buffer   int
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHandler creates a new WebSocket handler. checkOrigin may be nil to
// accept every origin.
func NewHandler(source Source, buffer int, checkOrigin func(r *http.Request) bool, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		source:   source,
		buffer:   buffer,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		logger:   logger.Named("ws"),
	}
}

// HandleConnection upgrades the request and forwards every event until
// the client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.source.Subscribe(h.buffer)
	defer sub.Close()

	log := h.logger.With(zap.String("listener", sub.ID()))
	log.Debug("Event stream connected")

	replies := make(chan map[string]any, 4)
	done := make(chan struct{})
	go h.readLoop(conn, replies, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := h.send(conn, map[string]any{
		"type":     "system",
		"message":  "Connected to package events",
		"listener": sub.ID(),
	}); err != nil {
		return
	}

	for {
		select {
		case <-done:
			log.Debug("Event stream closed by client")
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := h.sendEvent(conn, ev); err != nil {
				log.Debug("Event stream write failed", zap.Error(err))
				return
			}
		case reply := <-replies:
			if err := h.send(conn, reply); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop answers client pings and detects disconnects
func (h *Handler) readLoop(conn *websocket.Conn, replies chan<- map[string]any, done chan<- struct{}) {
	defer close(done)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply map[string]any
		switch msg.Type {
		case "ping":
			reply = map[string]any{"type": "pong"}
		default:
			reply = map[string]any{"type": "error", "message": "unknown message type"}
		}
		select {
		case replies <- reply:
		default:
		}
	}
}

func (h *Handler) sendEvent(conn *websocket.Conn, ev types.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

func (h *Handler) send(conn *websocket.Conn, data map[string]any) error {
	data["timestamp"] = time.Now().Unix()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}
