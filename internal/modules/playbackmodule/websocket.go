package playbackmodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/framepulse/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	// wsSendBuffer bounds per-client queueing; slow clients lose events
	// rather than stalling the bus
	wsSendBuffer = 64
)

// EventStreamHandler bridges the event bus onto websocket clients so UIs
// can follow playback progress, scrub transitions, and pool activity live.
type EventStreamHandler struct {
	logger   hclog.Logger
	eventBus events.EventBus
	upgrader websocket.Upgrader
}

// NewEventStreamHandler creates a websocket event stream handler
func NewEventStreamHandler(logger hclog.Logger, bus events.EventBus) *EventStreamHandler {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventStreamHandler{
		logger:   logger.Named("event-stream"),
		eventBus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// HandleEventStream upgrades the connection and forwards bus events as JSON
// until the client disconnects
func (h *EventStreamHandler) HandleEventStream(c *gin.Context) {
	if h.eventBus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event bus not running"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan events.Event, wsSendBuffer)
	sub, err := h.eventBus.Subscribe(events.EventFilter{}, func(event events.Event) error {
		select {
		case send <- event:
		default:
			// client is behind; skip rather than block delivery
		}
		return nil
	})
	if err != nil {
		h.logger.Warn("event subscription failed", "error", err)
		return
	}
	defer h.eventBus.Unsubscribe(sub.ID)

	h.logger.Debug("event stream client connected", "remote", conn.RemoteAddr().String())

	// drain client messages so pings and close frames are processed
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case event := <-send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
