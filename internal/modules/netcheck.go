package modules

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/telprobe/telprobe/internal/device"
	"github.com/telprobe/telprobe/internal/domain"
)

// ModuleNetworkCheck is the flow key for the network registration check.
const ModuleNetworkCheck = "network_check"

const probeTimeout = 15 * time.Second

// NetworkCheckExecutor runs the registration, signal and IP probes and
// passes only when all three do.
type NetworkCheckExecutor struct {
	commander device.Commander
	logger    *slog.Logger
}

// NewNetworkCheckExecutor creates a NetworkCheckExecutor.
func NewNetworkCheckExecutor(commander device.Commander, logger *slog.Logger) *NetworkCheckExecutor {
	return &NetworkCheckExecutor{commander: commander, logger: logger}
}

func (e *NetworkCheckExecutor) Name() string { return ModuleNetworkCheck }

func (e *NetworkCheckExecutor) Run(ctx context.Context, deviceID string, _ map[string]any) (domain.ModuleResult, error) {
	ctx, span := otel.Tracer("modules").Start(ctx, "modules.network_check")
	span.SetAttributes(attribute.String("device.id", deviceID))
	defer span.End()

	probe := func(name string) domain.StepResult {
		step := e.commander.Execute(ctx, deviceID, device.Command{
			Name:    name,
			Timeout: probeTimeout,
		})
		e.logger.Info("network probe finished",
			slog.String("device_id", deviceID),
			slog.String("probe", name),
			slog.Bool("success", step.Success),
		)
		return step
	}

	registration := probe(device.CmdCheckRegistration)
	signal := probe(device.CmdCheckSignal)
	ip := probe(device.CmdCheckIP)

	summary := map[string]any{
		"registered":   registration.Success,
		"signal_ok":    signal.Success,
		"ip_reachable": ip.Success,
	}
	for _, step := range []domain.StepResult{registration, signal, ip} {
		for k, v := range step.Detail {
			summary[k] = v
		}
	}

	res := &domain.NetworkCheckResult{
		ResultEnvelope: domain.ResultEnvelope{
			Module:  ModuleNetworkCheck,
			Success: registration.Success && signal.Success && ip.Success,
		},
		Registration: registration,
		Signal:       signal,
		IP:           ip,
		Summary:      summary,
	}
	return res, nil
}
