package domain

// StepResult is the structured outcome of one device command, as reported by
// the device-control collaborator. Device-level failures arrive as steps with
// Success=false; they are data, never Go errors.
type StepResult struct {
	Step      string         `json:"step"`
	Success   bool           `json:"success"`
	DurationS float64        `json:"duration_s"`
	Detail    map[string]any `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ResultEnvelope is embedded in every module result.
type ResultEnvelope struct {
	Module  string `json:"module"`
	Success bool   `json:"success"`
}

// Envelope lets any embedding result expose its common fields.
func (e ResultEnvelope) Envelope() ResultEnvelope { return e }

// ModuleResult is implemented by all module results via ResultEnvelope.
type ModuleResult interface {
	Envelope() ResultEnvelope
}

// CallResult aggregates a voice call test.
// Success is a loose bound: any connected call counts.
type CallResult struct {
	ResultEnvelope
	TotalCalls      int          `json:"total_calls"`
	SuccessfulCalls int          `json:"successful_calls"`
	DroppedCalls    int          `json:"dropped_calls"`
	AvgDurationS    float64      `json:"avg_duration_s"`
	SuccessRate     float64      `json:"success_rate"`
	Calls           []StepResult `json:"calls"`
}

// SMSResult aggregates an SMS test.
// Success is a strict bound: every message must be delivered.
type SMSResult struct {
	ResultEnvelope
	TotalSMS     int          `json:"total_sms"`
	DeliveredSMS int          `json:"delivered_sms"`
	SuccessRate  float64      `json:"success_rate"`
	Messages     []StepResult `json:"messages"`
}

// NetworkCheckResult combines the three independent probes.
// Success is the logical AND of all three.
type NetworkCheckResult struct {
	ResultEnvelope
	Registration StepResult     `json:"registration"`
	Signal       StepResult     `json:"signal"`
	IP           StepResult     `json:"ip"`
	Summary      map[string]any `json:"summary"`
}

// NetworkPerfResult carries raw throughput samples. No success judgment is
// derived beyond what the device layer reported per sample.
type NetworkPerfResult struct {
	ResultEnvelope
	ServerIP  string       `json:"server_ip"`
	Port      int          `json:"port"`
	DurationS float64      `json:"duration_s"`
	Repeats   int          `json:"repeats"`
	Samples   []StepResult `json:"samples"`
}

// SuccessRate returns successful/total, or 0.0 when total is zero.
func SuccessRate(successful, total int) float64 {
	if total <= 0 {
		return 0.0
	}
	return float64(successful) / float64(total)
}

// DroppedCount returns total-successful clamped at zero.
func DroppedCount(total, successful int) int {
	if d := total - successful; d > 0 {
		return d
	}
	return 0
}

// AvgDuration returns the mean duration over steps that reported a non-zero
// duration, or 0.0 when none did.
func AvgDuration(steps []StepResult) float64 {
	var sum float64
	var n int
	for _, s := range steps {
		if s.DurationS > 0 {
			sum += s.DurationS
			n++
		}
	}
	if n == 0 {
		return 0.0
	}
	return sum / float64(n)
}
