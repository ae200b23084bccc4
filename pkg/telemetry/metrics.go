package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API ─────────────────────────────────────────────────────────────────────

	APIExecutionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "api",
		Name:      "executions_submitted_total",
		Help:      "Total executions accepted through the REST surface.",
	})

	// ─── Task queue ──────────────────────────────────────────────────────────────

	QueueTasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "queue",
		Name:      "tasks_enqueued_total",
		Help:      "Total execution tasks pushed onto the queue.",
	})

	QueueTransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "queue",
		Name:      "transport_errors_total",
		Help:      "Queue operations degraded by a Redis transport failure.",
	}, []string{"op"})

	QueueMalformedTasks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "queue",
		Name:      "malformed_tasks_total",
		Help:      "Dequeued envelopes dropped because they could not be decoded.",
	})

	// ─── Orchestrator ────────────────────────────────────────────────────────────

	RunsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "orchestrator",
		Name:      "runs_processed_total",
		Help:      "Total module runs driven to a terminal state, labelled by module and status.",
	}, []string{"module", "status"})

	RunsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "telprobe",
		Subsystem: "orchestrator",
		Name:      "runs_inflight",
		Help:      "Module runs currently executing.",
	})

	ModuleDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "telprobe",
		Subsystem: "orchestrator",
		Name:      "module_duration_seconds",
		Help:      "End-to-end module execution time in seconds.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"module"})

	// ─── WebSocket fan-out ───────────────────────────────────────────────────────

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "telprobe",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Live WebSocket connections.",
	})

	WSBroadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "ws",
		Name:      "broadcasts_total",
		Help:      "Events delivered to subscriber send queues, labelled by scope.",
	}, []string{"scope"})

	WSDroppedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "ws",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a subscriber's send queue was full.",
	})

	// ─── Scheduler ───────────────────────────────────────────────────────────────

	SchedulerValidationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "telprobe",
		Subsystem: "scheduler",
		Name:      "validations_fired_total",
		Help:      "Recurring validations enqueued by the scheduler.",
	})
)
