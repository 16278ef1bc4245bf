package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/techscaniq/diligence/internal/infrastructure/monitoring"
	"github.com/techscaniq/diligence/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev
	},
}

const (
	// subscriberBuffer bounds queued events per connection; slow readers
	// lose events rather than stalling the pipeline
	subscriberBuffer = 64
	writeTimeout     = 10 * time.Second
)

// Hub fans pipeline phase events out to per-run WebSocket subscribers
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[chan pipeline.Event]struct{}
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewHub creates an event hub. Metrics may be nil.
func NewHub(log *zap.Logger, metrics *monitoring.Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:    make(map[string]map[chan pipeline.Event]struct{}),
		log:     log,
		metrics: metrics,
	}
}

// Broadcast delivers one phase event to every subscriber of its run.
// Satisfies pipeline.Listener; never blocks the pipeline.
func (h *Hub) Broadcast(event pipeline.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.RunID] {
		select {
		case ch <- event:
		default:
			// Subscriber is not keeping up; drop rather than stall
		}
	}
}

func (h *Hub) subscribe(runID string) chan pipeline.Event {
	ch := make(chan pipeline.Event, subscriberBuffer)
	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[chan pipeline.Event]struct{})
	}
	h.subs[runID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(runID string, ch chan pipeline.Event) {
	h.mu.Lock()
	if subs := h.subs[runID]; subs != nil {
		delete(subs, ch)
		if len(subs) == 0 {
			delete(h.subs, runID)
		}
	}
	h.mu.Unlock()
}

// Handler upgrades run-event subscriptions to WebSocket connections
type Handler struct {
	hub *Hub
	log *zap.Logger
}

// NewHandler creates a WebSocket handler backed by the hub
func NewHandler(hub *Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{hub: hub, log: log}
}

// HandleConnection upgrades the request and streams the run's phase events
// until the client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	runID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if h.hub.metrics != nil {
		h.hub.metrics.IncWSConnections()
		defer h.hub.metrics.DecWSConnections()
	}

	events := h.hub.subscribe(runID)
	defer h.hub.unsubscribe(runID, events)

	_ = conn.WriteJSON(map[string]interface{}{
		"type":   "subscribed",
		"run_id": runID,
	})

	// Reader goroutine detects client disconnect and answers pings
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "ping" {
				_ = conn.WriteJSON(map[string]interface{}{"type": "pong"})
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(map[string]interface{}{
				"type":  "phase_event",
				"event": event,
			}); err != nil {
				return
			}
			if h.hub.metrics != nil {
				h.hub.metrics.RecordWSMessage("out", "phase_event")
			}
		}
	}
}
