package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fooocus-orchestrator/internal/monitoring"
	"fooocus-orchestrator/internal/progressbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// progressWebSocket upgrades the connection and forwards every
// progress-bus update to the client until either side disconnects.
// Inbound messages are drained and ignored; the client has nothing to
// send the server over this socket.
type progressWebSocket struct {
	bus     *progressbus.Bus
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func newProgressWebSocket(bus *progressbus.Bus, metrics *monitoring.Metrics, logger *zap.Logger) *progressWebSocket {
	return &progressWebSocket{bus: bus, metrics: metrics, logger: logger}
}

func (h *Handler) WebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.ws.serve(conn)
}

func (w *progressWebSocket) serve(conn *websocket.Conn) {
	defer conn.Close()

	updates, unsubscribe := w.bus.Subscribe()
	if w.metrics != nil {
		defer func() { w.metrics.SetProgressSubscribers(float64(w.bus.SubscriberCount())) }()
	}
	defer unsubscribe()

	if w.metrics != nil {
		w.metrics.SetProgressSubscribers(float64(w.bus.SubscriberCount()))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}
}
