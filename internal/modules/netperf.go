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
	// ModuleNetworkPerf is the flow key for the network performance test.
	ModuleNetworkPerf = "network_perf"

	defaultPerfDuration = 10.0
	defaultPerfRepeats  = 1
)

// NetworkPerfExecutor runs timed throughput samples against a measurement
// server. Metrics are passed through as the device reports them; no
// derived pass/fail judgment beyond the per-sample flags.
type NetworkPerfExecutor struct {
	commander device.Commander
	logger    *slog.Logger
}

// NewNetworkPerfExecutor creates a NetworkPerfExecutor.
func NewNetworkPerfExecutor(commander device.Commander, logger *slog.Logger) *NetworkPerfExecutor {
	return &NetworkPerfExecutor{commander: commander, logger: logger}
}

func (e *NetworkPerfExecutor) Name() string { return ModuleNetworkPerf }

func (e *NetworkPerfExecutor) Run(ctx context.Context, deviceID string, params map[string]any) (domain.ModuleResult, error) {
	serverIP, ok := stringParam(params, "server_ip")
	if !ok || serverIP == "" {
		return nil, &domain.ValidationError{Module: ModuleNetworkPerf, Field: "server_ip", Reason: "required and must be non-empty"}
	}
	port, ok := intParam(params, "port")
	if !ok || port < 1 || port > 65535 {
		return nil, &domain.ValidationError{Module: ModuleNetworkPerf, Field: "port", Reason: "required and must be in 1..65535"}
	}
	durationS := floatParamDefault(params, "duration_s", defaultPerfDuration)
	repeats := intParamDefault(params, "repeats", defaultPerfRepeats)
	if repeats < 1 {
		repeats = defaultPerfRepeats
	}

	ctx, span := otel.Tracer("modules").Start(ctx, "modules.network_perf")
	span.SetAttributes(
		attribute.String("device.id", deviceID),
		attribute.Int("perf.repeats", repeats),
	)
	defer span.End()

	// Grace on top of the sample window for setup/teardown on the device.
	sampleTimeout := time.Duration(durationS+30) * time.Second

	samples := make([]domain.StepResult, 0, repeats)
	allOK := true
	for i := 0; i < repeats; i++ {
		step := e.commander.Execute(ctx, deviceID, device.Command{
			Name: device.CmdPerfSample,
			Args: map[string]any{
				"server_ip":  serverIP,
				"port":       port,
				"duration_s": durationS,
			},
			Timeout: sampleTimeout,
		})
		step.Step = fmt.Sprintf("sample_%d", i+1)
		if !step.Success {
			allOK = false
		}
		samples = append(samples, step)

		e.logger.Info("perf sample finished",
			slog.String("device_id", deviceID),
			slog.Int("sample", i+1),
			slog.Bool("success", step.Success),
		)
	}

	res := &domain.NetworkPerfResult{
		ResultEnvelope: domain.ResultEnvelope{
			Module:  ModuleNetworkPerf,
			Success: allOK,
		},
		ServerIP:  serverIP,
		Port:      port,
		DurationS: durationS,
		Repeats:   repeats,
		Samples:   samples,
	}
	return res, nil
}
