// Package queue implements the execution task queue on a Redis list.
//
// Delivery is at-most-once: BRPOP removes the item before the worker runs
// it, and there is no acknowledgment or redelivery. A worker crash after
// dequeue loses the task. This is the accepted contract, not an oversight.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/pkg/telemetry"
)

// TaskSource is the consumer-facing side of the queue.
type TaskSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) *domain.ExecutionTask
}

// TaskSink is the producer-facing side of the queue.
type TaskSink interface {
	Enqueue(ctx context.Context, executionID string, flowData json.RawMessage) bool
}

// Queue is a Redis-list-backed FIFO broker for execution tasks.
// All operations degrade on transport failure instead of returning errors:
// Enqueue/Clear report false, Dequeue reports nil, Size reports 0.
type Queue struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// New creates a Queue over the named Redis list.
func New(client *redis.Client, name string, logger *slog.Logger) *Queue {
	return &Queue{
		client: client,
		key:    "telprobe:queue:" + name,
		logger: logger,
	}
}

// Enqueue builds the execution envelope and pushes it onto the queue.
// Returns false on marshal or transport failure; never returns an error.
func (q *Queue) Enqueue(ctx context.Context, executionID string, flowData json.RawMessage) bool {
	task := domain.ExecutionTask{
		ID:          uuid.New().String(),
		Type:        domain.TaskTypeExecution,
		ExecutionID: executionID,
		FlowData:    flowData,
		CreatedAt:   time.Now().UTC(),
		Priority:    1,
	}

	data, err := json.Marshal(task)
	if err != nil {
		q.logger.Error("failed to marshal execution task",
			slog.String("execution_id", executionID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		q.logger.Error("enqueue failed",
			slog.String("execution_id", executionID),
			slog.String("error", err.Error()),
		)
		telemetry.QueueTransportErrors.WithLabelValues("enqueue").Inc()
		return false
	}

	telemetry.QueueTasksEnqueued.Inc()
	q.logger.Info("task enqueued",
		slog.String("task_id", task.ID),
		slog.String("execution_id", executionID),
	)
	return true
}

// Dequeue blocks until a task is available or timeout elapses.
// timeout == 0 blocks indefinitely. Returns nil on timeout, on transport
// failure, and for envelopes that cannot be decoded (logged and dropped).
// Each item is delivered to exactly one consumer.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) *domain.ExecutionTask {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil
		}
		q.logger.Error("dequeue failed", slog.String("error", err.Error()))
		telemetry.QueueTransportErrors.WithLabelValues("dequeue").Inc()
		return nil
	}

	// BRPOP returns [key, value].
	var task domain.ExecutionTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		q.logger.Error("malformed task envelope, discarding",
			slog.String("raw", res[1]),
			slog.String("error", err.Error()),
		)
		telemetry.QueueMalformedTasks.Inc()
		return nil
	}
	return &task
}

// Size returns the number of waiting tasks, or 0 on transport failure.
func (q *Queue) Size(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		q.logger.Error("queue size failed", slog.String("error", err.Error()))
		telemetry.QueueTransportErrors.WithLabelValues("size").Inc()
		return 0
	}
	return int(n)
}

// Clear drops all waiting tasks. Returns false on transport failure.
func (q *Queue) Clear(ctx context.Context) bool {
	if err := q.client.Del(ctx, q.key).Err(); err != nil {
		q.logger.Error("queue clear failed", slog.String("error", err.Error()))
		telemetry.QueueTransportErrors.WithLabelValues("clear").Inc()
		return false
	}
	return true
}
