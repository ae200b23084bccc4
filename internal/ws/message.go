// Package ws fans live run updates out to WebSocket subscribers.
package ws

import (
	"time"

	"github.com/telprobe/telprobe/internal/domain"
)

// Inbound message types. Anything else is logged and ignored.
const (
	MsgSubscribeDevice   = "subscribe_device"
	MsgUnsubscribeDevice = "unsubscribe_device"
	MsgStartPreview      = "start_preview"
	MsgStopPreview       = "stop_preview"
)

// Outbound event types.
const (
	EventRunUpdate    = "run_update"
	EventDeviceUpdate = "device_update"
)

// InboundMessage is the client-to-server envelope.
type InboundMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id,omitempty"`
	Quality  string `json:"quality,omitempty"`
}

// Event is the server-to-client envelope.
type Event struct {
	Type        string            `json:"type"`
	ExecutionID string            `json:"execution_id,omitempty"`
	DeviceID    string            `json:"device_id,omitempty"`
	Run         *domain.ModuleRun `json:"run,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
