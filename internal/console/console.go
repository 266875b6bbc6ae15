// Package console exposes the internal event bus to operators over a
// WebSocket endpoint. Each connected client receives every bus event as
// a JSON object, in publish order.
package console

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calebstour/caleb-sales-agent/internal/events"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// subscriberBuf is the per-client event buffer. A client that falls
	// further behind than this starts dropping events rather than
	// blocking publishers.
	subscriberBuf = 64
)

// Handler upgrades HTTP requests to WebSocket and streams bus events.
type Handler struct {
	bus      *events.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler builds the console endpoint. The console binds to the same
// listener as the webhooks and is expected to sit behind whatever auth
// the deployment puts in front of it.
func NewHandler(bus *events.Bus, logger *slog.Logger) *Handler {
	return &Handler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("console: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := h.bus.Subscribe(subscriberBuf)
	defer h.bus.Unsubscribe(ch)

	h.logger.Info("console client connected", "remote", r.RemoteAddr)

	// The client never sends application data; the read pump exists to
	// notice the close handshake and pong frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			h.logger.Info("console client disconnected", "remote", r.RemoteAddr)
			return
		case ev := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("console: write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
