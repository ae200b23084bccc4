package modules

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telprobe/telprobe/internal/device"
	"github.com/telprobe/telprobe/internal/domain"
)

// ── mocks ────────────────────────────────────────────────────────────────────

// fakeCommander replays a scripted sequence of step results and records
// every command it receives.
type fakeCommander struct {
	script   []domain.StepResult
	commands []device.Command
}

func (c *fakeCommander) Execute(_ context.Context, _ string, cmd device.Command) domain.StepResult {
	c.commands = append(c.commands, cmd)
	if len(c.script) == 0 {
		return domain.StepResult{Step: cmd.Name, Success: true, DurationS: 1}
	}
	step := c.script[0]
	c.script = c.script[1:]
	return step
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry_GetUnknownModule(t *testing.T) {
	r := NewRegistry()
	r.Register(NewCallExecutor(&fakeCommander{}, testLogger()))

	_, err := r.Get("tv_stream_test")
	var unkErr *domain.UnknownModuleError
	require.ErrorAs(t, err, &unkErr)
	assert.Equal(t, "tv_stream_test", unkErr.Module)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	cmdr := &fakeCommander{}
	r.Register(NewCallExecutor(cmdr, testLogger()))
	r.Register(NewSMSExecutor(cmdr, testLogger()))
	r.Register(NewNetworkCheckExecutor(cmdr, testLogger()))
	r.Register(NewNetworkPerfExecutor(cmdr, testLogger()))

	for _, name := range []string{ModuleCall, ModuleSMS, ModuleNetworkCheck, ModuleNetworkPerf} {
		e, err := r.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, e.Name())
	}
	assert.Len(t, r.Names(), 4)
}

// ── call_test ────────────────────────────────────────────────────────────────

func TestCall_ValidatesParameters(t *testing.T) {
	e := NewCallExecutor(&fakeCommander{}, testLogger())

	cases := []struct {
		name   string
		params map[string]any
		field  string
	}{
		{"missing number", map[string]any{"calls": 2.0}, "number"},
		{"empty number", map[string]any{"number": "", "calls": 2.0}, "number"},
		{"missing calls", map[string]any{"number": "+33612345678"}, "calls"},
		{"zero calls", map[string]any{"number": "+33612345678", "calls": 0.0}, "calls"},
		{"negative calls", map[string]any{"number": "+33612345678", "calls": -1.0}, "calls"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Run(context.Background(), "dev-1", tc.params)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestCall_PartialSuccessIsLooseSuccess(t *testing.T) {
	// One connected call out of three is still an overall pass.
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: false, DurationS: 0},
		{Success: true, DurationS: 20},
		{Success: false, DurationS: 0},
	}}
	e := NewCallExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"number": "+33612345678", "calls": 3.0,
	})
	require.NoError(t, err)

	call := res.(*domain.CallResult)
	assert.True(t, call.Success)
	assert.Equal(t, 3, call.TotalCalls)
	assert.Equal(t, 1, call.SuccessfulCalls)
	assert.Equal(t, 2, call.DroppedCalls)
	assert.InDelta(t, 1.0/3.0, call.SuccessRate, 1e-9)
	assert.Equal(t, 20.0, call.AvgDurationS, "zero-duration steps excluded from the mean")
}

func TestCall_AllZeroDurations(t *testing.T) {
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: false, DurationS: 0},
		{Success: false, DurationS: 0},
	}}
	e := NewCallExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"number": "+33612345678", "calls": 2.0,
	})
	require.NoError(t, err)

	call := res.(*domain.CallResult)
	assert.False(t, call.Success)
	assert.Equal(t, 0.0, call.AvgDurationS)
	assert.Equal(t, 0.0, call.SuccessRate)
	assert.Equal(t, 2, call.DroppedCalls)
}

func TestCall_TimeoutDerivation(t *testing.T) {
	cases := []struct {
		name     string
		params   map[string]any
		wantTalk float64
		wantRing float64
		wantVM   float64
	}{
		{
			"interval drives talk window, ring floors at 45",
			map[string]any{"interval": 30.0},
			30, 45, 40,
		},
		{
			"explicit duration beats interval",
			map[string]any{"duration": 90.0, "interval": 30.0},
			90, 90, 40,
		},
		{
			"explicit ring override wins even below the floor",
			map[string]any{"duration": 60.0, "ring_timeout": 20.0},
			60, 20, 40,
		},
		{
			"voicemail override",
			map[string]any{"interval": 10.0, "voicemail_timeout": 55.0},
			10, 45, 55,
		},
		{
			"defaults with no overrides",
			map[string]any{},
			30, 45, 40,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmdr := &fakeCommander{}
			e := NewCallExecutor(cmdr, testLogger())

			tc.params["number"] = "+33612345678"
			tc.params["calls"] = 1.0
			_, err := e.Run(context.Background(), "dev-1", tc.params)
			require.NoError(t, err)
			require.Len(t, cmdr.commands, 1)

			args := cmdr.commands[0].Args
			assert.Equal(t, tc.wantTalk, args["talk_window_s"])
			assert.Equal(t, tc.wantRing, args["ring_timeout_s"])
			assert.Equal(t, tc.wantVM, args["voicemail_timeout"])
		})
	}
}

func TestCall_StepsAreNamedSequentially(t *testing.T) {
	cmdr := &fakeCommander{}
	e := NewCallExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"number": "+33612345678", "calls": 2.0,
	})
	require.NoError(t, err)

	call := res.(*domain.CallResult)
	require.Len(t, call.Calls, 2)
	assert.Equal(t, "call_1", call.Calls[0].Step)
	assert.Equal(t, "call_2", call.Calls[1].Step)
}

// ── sms_test ─────────────────────────────────────────────────────────────────

func TestSMS_ValidatesParameters(t *testing.T) {
	e := NewSMSExecutor(&fakeCommander{}, testLogger())

	_, err := e.Run(context.Background(), "dev-1", map[string]any{"count": 2.0})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "recipient", verr.Field)

	_, err = e.Run(context.Background(), "dev-1", map[string]any{"recipient": "+33698765432"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "count", verr.Field)
}

func TestSMS_StrictSuccessBound(t *testing.T) {
	// Two of three delivered: call_test semantics would pass, SMS must not.
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: true, DurationS: 2},
		{Success: false, DurationS: 0},
		{Success: true, DurationS: 3},
	}}
	e := NewSMSExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"recipient": "+33698765432", "count": 3.0,
	})
	require.NoError(t, err)

	sms := res.(*domain.SMSResult)
	assert.False(t, sms.Success)
	assert.Equal(t, 3, sms.TotalSMS)
	assert.Equal(t, 2, sms.DeliveredSMS)
	assert.InDelta(t, 2.0/3.0, sms.SuccessRate, 1e-9)
}

func TestSMS_AllDelivered(t *testing.T) {
	e := NewSMSExecutor(&fakeCommander{}, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"recipient": "+33698765432", "count": 2.0,
	})
	require.NoError(t, err)

	sms := res.(*domain.SMSResult)
	assert.True(t, sms.Success)
	assert.Equal(t, 1.0, sms.SuccessRate)
}

// ── network_check ────────────────────────────────────────────────────────────

func TestNetworkCheck_AllProbesPass(t *testing.T) {
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: true, Detail: map[string]any{"operator": "Orange F"}},
		{Success: true, Detail: map[string]any{"rsrp_dbm": -95.0}},
		{Success: true, Detail: map[string]any{"ip": "10.20.30.40"}},
	}}
	e := NewNetworkCheckExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", nil)
	require.NoError(t, err)

	nc := res.(*domain.NetworkCheckResult)
	assert.True(t, nc.Success)
	assert.Equal(t, "Orange F", nc.Summary["operator"])
	assert.Equal(t, -95.0, nc.Summary["rsrp_dbm"])
	assert.Equal(t, "10.20.30.40", nc.Summary["ip"])
	assert.Equal(t, true, nc.Summary["registered"])
}

func TestNetworkCheck_SingleProbeFailureFailsRun(t *testing.T) {
	// Signal probe fails; registration and IP pass.
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: true},
		{Success: false, Error: "no signal reading"},
		{Success: true},
	}}
	e := NewNetworkCheckExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", nil)
	require.NoError(t, err)

	nc := res.(*domain.NetworkCheckResult)
	assert.False(t, nc.Success)
	assert.True(t, nc.Registration.Success)
	assert.False(t, nc.Signal.Success)
	assert.True(t, nc.IP.Success)
	assert.Equal(t, false, nc.Summary["signal_ok"])
}

func TestNetworkCheck_ProbeOrder(t *testing.T) {
	cmdr := &fakeCommander{}
	e := NewNetworkCheckExecutor(cmdr, testLogger())

	_, err := e.Run(context.Background(), "dev-1", nil)
	require.NoError(t, err)
	require.Len(t, cmdr.commands, 3)
	assert.Equal(t, device.CmdCheckRegistration, cmdr.commands[0].Name)
	assert.Equal(t, device.CmdCheckSignal, cmdr.commands[1].Name)
	assert.Equal(t, device.CmdCheckIP, cmdr.commands[2].Name)
}

// ── network_perf ─────────────────────────────────────────────────────────────

func TestNetworkPerf_ValidatesParameters(t *testing.T) {
	e := NewNetworkPerfExecutor(&fakeCommander{}, testLogger())

	_, err := e.Run(context.Background(), "dev-1", map[string]any{"port": 5201.0})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "server_ip", verr.Field)

	_, err = e.Run(context.Background(), "dev-1", map[string]any{"server_ip": "192.0.2.1", "port": 70000.0})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "port", verr.Field)
}

func TestNetworkPerf_DefaultsAndPassthrough(t *testing.T) {
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: true, DurationS: 10, Detail: map[string]any{"throughput_mbps": 87.4}},
	}}
	e := NewNetworkPerfExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"server_ip": "192.0.2.1", "port": 5201.0,
	})
	require.NoError(t, err)

	perf := res.(*domain.NetworkPerfResult)
	assert.True(t, perf.Success)
	assert.Equal(t, 10.0, perf.DurationS)
	assert.Equal(t, 1, perf.Repeats)
	require.Len(t, perf.Samples, 1)
	assert.Equal(t, 87.4, perf.Samples[0].Detail["throughput_mbps"])

	require.Len(t, cmdr.commands, 1)
	assert.Equal(t, 10.0, cmdr.commands[0].Args["duration_s"])
	assert.Equal(t, 5201, cmdr.commands[0].Args["port"])
}

func TestNetworkPerf_FailedSampleFailsRun(t *testing.T) {
	cmdr := &fakeCommander{script: []domain.StepResult{
		{Success: true, DurationS: 5},
		{Success: false, Error: "iperf session aborted"},
	}}
	e := NewNetworkPerfExecutor(cmdr, testLogger())

	res, err := e.Run(context.Background(), "dev-1", map[string]any{
		"server_ip": "192.0.2.1", "port": 5201.0, "duration_s": 5.0, "repeats": 2.0,
	})
	require.NoError(t, err)

	perf := res.(*domain.NetworkPerfResult)
	assert.False(t, perf.Success)
	assert.Len(t, perf.Samples, 2)
}
