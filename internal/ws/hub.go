package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/pkg/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth and origin policy live on the gateway in front of us.
	CheckOrigin: func(*http.Request) bool { return true },
}

// PreviewFunc handles start_preview/stop_preview requests when a video
// source is wired in.
type PreviewFunc func(c *Client, msg InboundMessage)

// Hub tracks connected clients and routes events to them. Execution
// events reach only clients registered under that execution; device
// events reach every client whose interest set matches (or is empty).
// Delivery to one client never blocks delivery to the rest: each client
// has a bounded queue and events for a saturated client are dropped.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	executions map[string]map[*Client]struct{}

	onPreview PreviewFunc
	logger    *slog.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithPreviewHandler wires a preview source into the hub.
func WithPreviewHandler(fn PreviewFunc) HubOption {
	return func(h *Hub) { h.onPreview = fn }
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		executions: make(map[string]map[*Client]struct{}),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeWS upgrades an HTTP request and runs the connection's pumps.
// The execution_id query parameter scopes the client to one execution's
// run updates; without it the client still receives device updates.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := newClient(h, conn, r.URL.Query().Get("execution_id"), h.logger)
	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// Register adds a client to the hub and, when scoped, to its execution
// group.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if c.executionID != "" {
		group, ok := h.executions[c.executionID]
		if !ok {
			group = make(map[*Client]struct{})
			h.executions[c.executionID] = group
		}
		group[c] = struct{}{}
	}
	telemetry.WSConnections.Inc()
	h.logger.Info("websocket client connected",
		slog.String("execution_id", c.executionID),
		slog.Int("clients", len(h.clients)),
	)
}

// Unregister removes a client from every group. Safe to call more than
// once for the same client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if c.executionID != "" {
		if group, ok := h.executions[c.executionID]; ok {
			delete(group, c)
			if len(group) == 0 {
				delete(h.executions, c.executionID)
			}
		}
	}
	close(c.send)
	telemetry.WSConnections.Dec()
	h.logger.Info("websocket client disconnected",
		slog.String("execution_id", c.executionID),
		slog.Int("clients", len(h.clients)),
	)
}

// BroadcastExecution delivers an event to the clients registered under
// executionID.
func (h *Hub) BroadcastExecution(executionID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	telemetry.WSBroadcasts.WithLabelValues("execution").Inc()
	for c := range h.executions[executionID] {
		h.deliver(c, data)
	}
}

// BroadcastDevice delivers an event to every client interested in the
// device, including wildcard listeners with no filter set.
func (h *Hub) BroadcastDevice(deviceID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	telemetry.WSBroadcasts.WithLabelValues("device").Inc()
	for c := range h.clients {
		if c.wantsDevice(deviceID) {
			h.deliver(c, data)
		}
	}
}

// deliver enqueues data on the client's send channel, dropping the event
// if the channel is full. Caller holds h.mu (read).
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		telemetry.WSDroppedEvents.Inc()
		h.logger.Warn("dropping event for slow client",
			slog.String("execution_id", c.executionID),
		)
	}
}

// PublishRunUpdate implements tracker.Publisher. Each transition becomes
// an execution-scoped run_update and, when the run targets a device, a
// device-scoped device_update.
func (h *Hub) PublishRunUpdate(executionID string, run *domain.ModuleRun) {
	now := time.Now().UTC()
	h.BroadcastExecution(executionID, Event{
		Type:        EventRunUpdate,
		ExecutionID: executionID,
		DeviceID:    run.DeviceID,
		Run:         run,
		Timestamp:   now,
	})
	if run.DeviceID != "" {
		h.BroadcastDevice(run.DeviceID, Event{
			Type:        EventDeviceUpdate,
			ExecutionID: executionID,
			DeviceID:    run.DeviceID,
			Run:         run,
			Timestamp:   now,
		})
	}
}
