package domain

import (
	"encoding/json"
	"time"
)

// Status represents the states a module run can be in.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ModuleRun is the lifecycle record of one module execution against a device.
//
// Status and Success are independent axes: a run can be COMPLETED with
// Success=false when the module ran to the end but some or all of its steps
// failed on the device. FAILED means the module itself did not run to the end
// (validation error, dispatch error, panic).
//
// Invariants maintained by the tracker:
//   - CompletedAt is non-nil iff Status is terminal.
//   - DurationMs is non-nil only when Status is COMPLETED.
type ModuleRun struct {
	ID           string          `json:"id"`
	ModuleID     string          `json:"module_id"`
	ModuleName   string          `json:"module_name"`
	DeviceID     string          `json:"device_id"`
	Status       Status          `json:"status"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message"`
	Parameters   json.RawMessage `json:"parameters"`
	Result       json.RawMessage `json:"result"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	DurationMs   *int64          `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
