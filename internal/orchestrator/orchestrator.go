// Package orchestrator runs the worker pool that turns queued execution
// tasks into tracked module runs.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/internal/modules"
	"github.com/telprobe/telprobe/internal/postgres"
	"github.com/telprobe/telprobe/internal/queue"
	"github.com/telprobe/telprobe/internal/redis"
	"github.com/telprobe/telprobe/internal/tracker"
	"github.com/telprobe/telprobe/pkg/telemetry"
)

// Orchestrator owns a fixed pool of workers. Each worker alternates
// dequeue → run one module to completion → dequeue; a worker never runs
// two modules at once, but distinct workers run concurrently. There is
// no per-device locking here: serializing commands on a device is the
// bridge's concern.
//
// There is no cancellation API for an in-flight run. Killing a worker
// mid-run strands its ModuleRun in RUNNING.
type Orchestrator struct {
	source         queue.TaskSource
	repo           postgres.RunRepository
	cache          redis.RunCache
	pub            tracker.Publisher
	registry       *modules.Registry
	workers        int
	dequeueTimeout time.Duration
	logger         *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithWorkers(n int) Option                     { return func(o *Orchestrator) { o.workers = n } }
func WithDequeueTimeout(d time.Duration) Option    { return func(o *Orchestrator) { o.dequeueTimeout = d } }
func WithLogger(l *slog.Logger) Option             { return func(o *Orchestrator) { o.logger = l } }

// New constructs an Orchestrator with the given dependencies and options.
func New(
	source queue.TaskSource,
	repo postgres.RunRepository,
	cache redis.RunCache,
	pub tracker.Publisher,
	registry *modules.Registry,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		source:         source,
		repo:           repo,
		cache:          cache,
		pub:            pub,
		registry:       registry,
		workers:        4,
		dequeueTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// in-flight runs finish.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator starting", slog.Int("workers", o.workers))

	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			o.workerLoop(ctx, workerID)
		}(i)
	}
	wg.Wait()
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) workerLoop(ctx context.Context, workerID int) {
	log := o.logger.With(slog.Int("worker_id", workerID))
	for {
		if ctx.Err() != nil {
			return
		}
		task := o.source.Dequeue(ctx, o.dequeueTimeout)
		if task == nil {
			continue
		}
		o.processTask(ctx, log, task)
	}
}

// processTask runs every module of one execution task, in flow order.
func (o *Orchestrator) processTask(ctx context.Context, log *slog.Logger, task *domain.ExecutionTask) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "orchestrator.process_task")
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("execution.id", task.ExecutionID),
	)
	defer span.End()

	log = log.With(slog.String("execution_id", task.ExecutionID))

	specs, err := domain.ParseFlow(task.FlowData)
	if err != nil {
		log.Error("invalid flow data, discarding task", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid flow data")
		telemetry.QueueMalformedTasks.Inc()
		return
	}

	log.Info("execution started", slog.Int("modules", len(specs)))
	for _, spec := range specs {
		o.runModule(ctx, log, task.ExecutionID, spec)
	}
	log.Info("execution finished")
}

// runModule drives one ModuleRun through its full lifecycle.
func (o *Orchestrator) runModule(ctx context.Context, log *slog.Logger, executionID string, spec domain.ModuleSpec) {
	ctx, span := otel.Tracer("orchestrator").Start(ctx, "orchestrator.run_module")
	span.SetAttributes(
		attribute.String("module.name", spec.Name),
		attribute.String("device.id", spec.DeviceID),
	)
	defer span.End()

	run := newRun(spec)
	if err := o.repo.Create(ctx, run); err != nil {
		log.Error("failed to create run record",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
	tr := tracker.New(run, executionID, o.repo, o.cache, o.pub, log)

	telemetry.RunsInFlight.Inc()
	defer telemetry.RunsInFlight.Dec()

	status := o.execute(ctx, log, tr, spec)
	telemetry.RunsProcessed.WithLabelValues(spec.Name, string(status)).Inc()
}

// execute performs the tracked transitions around the executor call and
// reports the terminal status. A panicking executor fails the run
// instead of killing the worker.
func (o *Orchestrator) execute(ctx context.Context, log *slog.Logger, tr *tracker.Tracker, spec domain.ModuleSpec) (status domain.Status) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("executor panicked",
				slog.String("module", spec.Name),
				slog.Any("panic", r),
			)
			_ = tr.MarkFailed(ctx, fmt.Sprintf("executor panic: %v", r))
			status = domain.StatusFailed
		}
	}()

	exec, err := o.registry.Get(spec.Name)
	if err != nil {
		_ = tr.MarkFailed(ctx, err.Error())
		return domain.StatusFailed
	}

	if err := tr.MarkRunning(ctx); err != nil {
		log.Error("cannot start run", slog.String("error", err.Error()))
		return tr.Run().Status
	}

	start := time.Now()
	result, err := exec.Run(ctx, spec.DeviceID, spec.Parameters)
	elapsed := time.Since(start)
	telemetry.ModuleDurationSeconds.WithLabelValues(spec.Name).Observe(elapsed.Seconds())

	if err != nil {
		_ = tr.MarkFailed(ctx, err.Error())
		return domain.StatusFailed
	}

	env := result.Envelope()
	_ = tr.MarkCompleted(ctx, env.Success, result, elapsed.Milliseconds())
	return domain.StatusCompleted
}

func newRun(spec domain.ModuleSpec) *domain.ModuleRun {
	now := time.Now().UTC()
	params, _ := spec.MarshalParameters()
	moduleID := spec.ID
	if moduleID == "" {
		moduleID = uuid.New().String()
	}
	return &domain.ModuleRun{
		ID:         uuid.New().String(),
		ModuleID:   moduleID,
		ModuleName: spec.Name,
		DeviceID:   spec.DeviceID,
		Status:     domain.StatusQueued,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
