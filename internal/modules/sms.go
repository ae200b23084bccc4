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

// ModuleSMS is the flow key for the SMS delivery test.
const ModuleSMS = "sms_test"

const defaultSMSTimeout = 60 * time.Second

// SMSExecutor sends a batch of messages and checks delivery. Unlike the
// call test, the run succeeds only if every message was delivered.
type SMSExecutor struct {
	commander device.Commander
	logger    *slog.Logger
}

// NewSMSExecutor creates an SMSExecutor bound to the given commander.
func NewSMSExecutor(commander device.Commander, logger *slog.Logger) *SMSExecutor {
	return &SMSExecutor{commander: commander, logger: logger}
}

func (e *SMSExecutor) Name() string { return ModuleSMS }

func (e *SMSExecutor) Run(ctx context.Context, deviceID string, params map[string]any) (domain.ModuleResult, error) {
	recipient, ok := stringParam(params, "recipient")
	if !ok || recipient == "" {
		return nil, &domain.ValidationError{Module: ModuleSMS, Field: "recipient", Reason: "required and must be non-empty"}
	}
	count, ok := intParam(params, "count")
	if !ok || count <= 0 {
		return nil, &domain.ValidationError{Module: ModuleSMS, Field: "count", Reason: "required and must be > 0"}
	}
	message, _ := stringParam(params, "message")
	if message == "" {
		message = "telprobe validation message"
	}

	ctx, span := otel.Tracer("modules").Start(ctx, "modules.sms_test")
	span.SetAttributes(
		attribute.String("device.id", deviceID),
		attribute.Int("sms.count", count),
	)
	defer span.End()

	steps := make([]domain.StepResult, 0, count)
	delivered := 0
	for i := 0; i < count; i++ {
		step := e.commander.Execute(ctx, deviceID, device.Command{
			Name: device.CmdSendSMS,
			Args: map[string]any{
				"recipient": recipient,
				"message":   message,
			},
			Timeout: defaultSMSTimeout,
		})
		step.Step = fmt.Sprintf("sms_%d", i+1)
		if step.Success {
			delivered++
		}
		steps = append(steps, step)

		e.logger.Info("sms sent",
			slog.String("device_id", deviceID),
			slog.Int("message", i+1),
			slog.Bool("delivered", step.Success),
		)
	}

	res := &domain.SMSResult{
		ResultEnvelope: domain.ResultEnvelope{
			Module:  ModuleSMS,
			Success: delivered == count,
		},
		TotalSMS:     count,
		DeliveredSMS: delivered,
		SuccessRate:  domain.SuccessRate(delivered, count),
		Messages:     steps,
	}
	return res, nil
}
