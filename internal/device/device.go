// Package device talks to the Android device bridge that drives handsets
// over ADB. Executors never see transport details; they issue named
// commands and get back step results.
package device

import (
	"context"
	"time"

	"github.com/telprobe/telprobe/internal/domain"
)

// Command names understood by the bridge.
const (
	CmdPlaceCall         = "place_call"
	CmdSendSMS           = "send_sms"
	CmdCheckRegistration = "check_registration"
	CmdCheckSignal       = "check_signal"
	CmdCheckIP           = "check_ip"
	CmdPerfSample        = "perf_sample"
)

// Command is a single instruction for a device.
type Command struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Timeout time.Duration  `json:"-"`
}

// Commander executes commands against a device. Implementations never
// return a Go error: every failure, transport or device-side, is reported
// as a failed StepResult so executors can aggregate it like any other
// unsuccessful step.
type Commander interface {
	Execute(ctx context.Context, deviceID string, cmd Command) domain.StepResult
}
