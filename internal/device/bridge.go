package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/pkg/retry"
)

const defaultCommandTimeout = 120 * time.Second

// Bridge is an HTTP Commander. It POSTs commands to
// {baseURL}/devices/{id}/commands and decodes the step result from the
// response body.
type Bridge struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	retry   retry.Config
}

// BridgeOption customises a Bridge.
type BridgeOption func(*Bridge)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) BridgeOption {
	return func(b *Bridge) { b.client = c }
}

// WithRetry overrides the transport retry policy.
func WithRetry(cfg retry.Config) BridgeOption {
	return func(b *Bridge) { b.retry = cfg }
}

// NewBridge creates a Commander over the device bridge at baseURL.
func NewBridge(baseURL string, logger *slog.Logger, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		baseURL: baseURL,
		client:  &http.Client{},
		logger:  logger,
		retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// bridgeResponse is the wire shape the bridge answers with.
type bridgeResponse struct {
	Success   bool           `json:"success"`
	DurationS float64        `json:"duration_s"`
	Detail    map[string]any `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Execute sends cmd to the device. Transport errors are retried; a
// non-2xx response or a device-reported failure is final and comes back
// as a failed step. The returned step is always named after the command.
func (b *Bridge) Execute(ctx context.Context, deviceID string, cmd Command) domain.StepResult {
	tracer := otel.Tracer("device-bridge")
	ctx, span := tracer.Start(ctx, "bridge.execute")
	span.SetAttributes(
		attribute.String("device.id", deviceID),
		attribute.String("command.name", cmd.Name),
	)
	defer span.End()

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(cmd)
	if err != nil {
		return failedStep(cmd.Name, fmt.Sprintf("encode command: %v", err))
	}

	url := fmt.Sprintf("%s/devices/%s/commands", b.baseURL, deviceID)
	start := time.Now()

	var resp bridgeResponse
	retryCfg := b.retry
	retryCfg.OnRetry = func(attempt int, err error) {
		b.logger.Warn("bridge request failed, retrying",
			slog.String("device_id", deviceID),
			slog.String("command", cmd.Name),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	err = retry.Do(ctx, retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		httpResp, err := b.client.Do(req)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
		if err != nil {
			return err
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			// The bridge answered; retrying will not change the outcome.
			resp = bridgeResponse{Error: fmt.Sprintf("bridge returned %d: %s", httpResp.StatusCode, truncate(string(data), 200))}
			return nil
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			resp = bridgeResponse{Error: fmt.Sprintf("decode bridge response: %v", err)}
			return nil
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.StepResult{
			Step:      cmd.Name,
			Success:   false,
			DurationS: time.Since(start).Seconds(),
			Error:     fmt.Sprintf("bridge unreachable: %v", err),
		}
	}

	step := domain.StepResult{
		Step:      cmd.Name,
		Success:   resp.Success,
		DurationS: resp.DurationS,
		Detail:    resp.Detail,
		Error:     resp.Error,
	}
	if resp.Error != "" {
		step.Success = false
	}
	if step.DurationS == 0 {
		step.DurationS = time.Since(start).Seconds()
	}
	return step
}

func failedStep(name, msg string) domain.StepResult {
	return domain.StepResult{Step: name, Success: false, Error: msg}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
