package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskTypeExecution is the envelope type for execution requests on the queue.
const TaskTypeExecution = "execution"

// ExecutionTask is the queue envelope for one execution request. It is
// immutable once enqueued and consumed at most once by a single worker:
// there is no acknowledgment and no redelivery.
type ExecutionTask struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ExecutionID string          `json:"execution_id"`
	FlowData    json.RawMessage `json:"flow_data"`
	CreatedAt   time.Time       `json:"created_at"`
	Priority    int             `json:"priority"`
}

// ModuleSpec is one module entry inside an execution's flow data.
type ModuleSpec struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	DeviceID   string         `json:"device_id"`
	Parameters map[string]any `json:"parameters"`
}

// MarshalParameters encodes the module parameters for persistence.
func (s ModuleSpec) MarshalParameters() (json.RawMessage, error) {
	if s.Parameters == nil {
		return nil, nil
	}
	return json.Marshal(s.Parameters)
}

// flowData is the parsed shape of ExecutionTask.FlowData.
type flowData struct {
	Modules []ModuleSpec `json:"modules"`
}

// ParseFlow extracts the module list from raw flow data.
func ParseFlow(raw json.RawMessage) ([]ModuleSpec, error) {
	var f flowData
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse flow data: %w", err)
	}
	if len(f.Modules) == 0 {
		return nil, fmt.Errorf("flow data contains no modules")
	}
	return f.Modules, nil
}
