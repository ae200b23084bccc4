package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendBuffer bounds each connection's outbound queue. When it fills,
	// new events for that connection are dropped; other connections are
	// unaffected.
	sendBuffer = 64
)

// Client is one WebSocket connection. An empty device-interest set means
// the client is a wildcard listener and receives every device update.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	executionID string
	logger      *slog.Logger

	mu      sync.RWMutex
	devices map[string]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, executionID string, logger *slog.Logger) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		executionID: executionID,
		logger:      logger,
		devices:     make(map[string]struct{}),
	}
}

func (c *Client) subscribeDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[deviceID] = struct{}{}
}

func (c *Client) unsubscribeDevice(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, deviceID)
}

// wantsDevice reports whether a device-scoped event should reach this
// client. Clients with no filter receive everything.
func (c *Client) wantsDevice(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.devices) == 0 {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

// handleInbound dispatches one decoded client message. Unknown types are
// logged and ignored; the connection stays open either way.
func (c *Client) handleInbound(msg InboundMessage) {
	switch msg.Type {
	case MsgSubscribeDevice:
		if msg.DeviceID == "" {
			c.logger.Warn("subscribe_device without device_id")
			return
		}
		c.subscribeDevice(msg.DeviceID)
	case MsgUnsubscribeDevice:
		if msg.DeviceID == "" {
			c.logger.Warn("unsubscribe_device without device_id")
			return
		}
		c.unsubscribeDevice(msg.DeviceID)
	case MsgStartPreview, MsgStopPreview:
		if c.hub.onPreview != nil {
			c.hub.onPreview(c, msg)
		} else {
			c.logger.Info("preview requested but no preview source configured",
				slog.String("type", msg.Type),
				slog.String("device_id", msg.DeviceID),
			)
		}
	default:
		c.logger.Warn("ignoring unknown message type", slog.String("type", msg.Type))
	}
}

// readPump pumps inbound messages from the connection. Malformed JSON is
// dropped without closing the connection.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", slog.String("error", err.Error()))
			}
			return
		}
		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("dropping malformed client message", slog.String("error", err.Error()))
			continue
		}
		c.handleInbound(msg)
	}
}

// writePump pumps events from the send channel to the connection and
// keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
