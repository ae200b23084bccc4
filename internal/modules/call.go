package modules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/telprobe/telprobe/internal/device"
	"github.com/telprobe/telprobe/internal/domain"
)

const (
	// ModuleCall is the flow key for the voice call test.
	ModuleCall = "call_test"

	defaultCallInterval    = 30.0
	minRingTimeout         = 45.0
	defaultVoicemailWindow = 40.0
)

// CallExecutor places a series of voice calls and aggregates the outcome.
// A run succeeds if at least one call connected.
type CallExecutor struct {
	commander device.Commander
	logger    *slog.Logger
}

// NewCallExecutor creates a CallExecutor bound to the given commander.
func NewCallExecutor(commander device.Commander, logger *slog.Logger) *CallExecutor {
	return &CallExecutor{commander: commander, logger: logger}
}

func (e *CallExecutor) Name() string { return ModuleCall }

func (e *CallExecutor) Run(ctx context.Context, deviceID string, params map[string]any) (domain.ModuleResult, error) {
	number, ok := stringParam(params, "number")
	if !ok || number == "" {
		return nil, &domain.ValidationError{Module: ModuleCall, Field: "number", Reason: "required and must be non-empty"}
	}
	calls, ok := intParam(params, "calls")
	if !ok || calls <= 0 {
		return nil, &domain.ValidationError{Module: ModuleCall, Field: "calls", Reason: "required and must be > 0"}
	}

	// The talk window comes from an explicit duration when given,
	// otherwise from the call interval. Ring timeout must cover the talk
	// window but never drops below 45s unless explicitly overridden.
	talkWindow, hasDuration := floatParam(params, "duration")
	if !hasDuration {
		talkWindow = floatParamDefault(params, "interval", defaultCallInterval)
	}
	ringTimeout, hasRing := floatParam(params, "ring_timeout")
	if !hasRing {
		ringTimeout = talkWindow
		if ringTimeout < minRingTimeout {
			ringTimeout = minRingTimeout
		}
	}
	voicemailTimeout := floatParamDefault(params, "voicemail_timeout", defaultVoicemailWindow)

	ctx, span := otel.Tracer("modules").Start(ctx, "modules.call_test")
	span.SetAttributes(
		attribute.String("device.id", deviceID),
		attribute.Int("call.count", calls),
	)
	defer span.End()

	cmdTimeout := time.Duration(ringTimeout+talkWindow+voicemailTimeout) * time.Second

	steps := make([]domain.StepResult, 0, calls)
	successful := 0
	for i := 0; i < calls; i++ {
		step := e.commander.Execute(ctx, deviceID, device.Command{
			Name: device.CmdPlaceCall,
			Args: map[string]any{
				"number":            number,
				"talk_window_s":     talkWindow,
				"ring_timeout_s":    ringTimeout,
				"voicemail_timeout": voicemailTimeout,
			},
			Timeout: cmdTimeout,
		})
		step.Step = fmt.Sprintf("call_%d", i+1)
		if step.Success {
			successful++
		}
		steps = append(steps, step)

		e.logger.Info("call placed",
			slog.String("device_id", deviceID),
			slog.Int("call", i+1),
			slog.Bool("connected", step.Success),
		)
	}

	res := &domain.CallResult{
		ResultEnvelope: domain.ResultEnvelope{
			Module:  ModuleCall,
			Success: successful > 0,
		},
		TotalCalls:      calls,
		SuccessfulCalls: successful,
		DroppedCalls:    domain.DroppedCount(calls, successful),
		AvgDurationS:    domain.AvgDuration(steps),
		SuccessRate:     domain.SuccessRate(successful, calls),
		Calls:           steps,
	}
	return res, nil
}
