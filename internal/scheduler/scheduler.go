// Package scheduler fires recurring validations into the task queue.
// Multiple server instances may run it; a Redis leader lock ensures only
// one of them enqueues per tick.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/telprobe/telprobe/internal/queue"
	"github.com/telprobe/telprobe/pkg/telemetry"
)

const (
	leaderKey     = "telprobe:scheduler:leader"
	leaderTTL     = 30 * time.Second
	checkInterval = 15 * time.Second
)

// ScheduledValidation mirrors the scheduled_validations DB table.
type ScheduledValidation struct {
	ID        string
	Name      string
	CronExpr  string
	FlowData  json.RawMessage
	Enabled   bool
	LastRunAt *time.Time
	NextRunAt *time.Time
}

// Scheduler fires due validations with Redis leader election.
type Scheduler struct {
	pool       *pgxpool.Pool
	sink       queue.TaskSink
	redis      *redis.Client
	instanceID string
	logger     *slog.Logger
}

func New(
	pool *pgxpool.Pool,
	sink queue.TaskSink,
	redisClient *redis.Client,
	instanceID string,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		pool:       pool,
		sink:       sink,
		redis:      redisClient,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Run is the main polling loop: tries to become leader, then fires due
// validations. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	// Run once immediately before waiting for the first tick.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.acquireOrRenewLeadership(ctx) {
		return
	}
	if err := s.processDueValidations(ctx); err != nil {
		s.logger.Error("processDueValidations", slog.String("error", err.Error()))
	}
}

// acquireOrRenewLeadership attempts SETNX; returns true if this instance
// is the leader.
func (s *Scheduler) acquireOrRenewLeadership(ctx context.Context) bool {
	ok, err := s.redis.SetNX(ctx, leaderKey, s.instanceID, leaderTTL).Result()
	if err != nil {
		s.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		return false
	}
	if ok {
		s.logger.Info("acquired scheduler leadership", slog.String("instance_id", s.instanceID))
		return true
	}

	// Already set — renew only if we own it (atomic Lua script avoids races).
	renewScript := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	result, err := renewScript.Run(
		ctx, s.redis,
		[]string{leaderKey},
		s.instanceID,
		leaderTTL.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Error("leader renewal", slog.String("error", err.Error()))
		return false
	}
	return result == 1
}

func (s *Scheduler) processDueValidations(ctx context.Context) error {
	due, err := s.loadDueValidations(ctx)
	if err != nil {
		return err
	}
	for _, v := range due {
		if err := s.fire(ctx, v); err != nil {
			s.logger.Error("scheduled validation failed to fire",
				slog.String("validation", v.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (s *Scheduler) loadDueValidations(ctx context.Context) ([]ScheduledValidation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, cron_expr, flow_data, enabled, last_run_at, next_run_at
		FROM scheduled_validations
		WHERE enabled = TRUE AND (next_run_at IS NULL OR next_run_at <= NOW())
		ORDER BY next_run_at ASC NULLS FIRST
	`)
	if err != nil {
		return nil, fmt.Errorf("query scheduled_validations: %w", err)
	}
	defer rows.Close()

	var due []ScheduledValidation
	for rows.Next() {
		var v ScheduledValidation
		if err := rows.Scan(
			&v.ID, &v.Name, &v.CronExpr, &v.FlowData,
			&v.Enabled, &v.LastRunAt, &v.NextRunAt,
		); err != nil {
			return nil, fmt.Errorf("scan scheduled_validation: %w", err)
		}
		due = append(due, v)
	}
	return due, rows.Err()
}

// fire enqueues one execution for the validation and advances its cron
// bookkeeping.
func (s *Scheduler) fire(ctx context.Context, v ScheduledValidation) error {
	now := time.Now().UTC()
	executionID := uuid.New().String()

	if !s.sink.Enqueue(ctx, executionID, v.FlowData) {
		return fmt.Errorf("enqueue execution for validation %q", v.Name)
	}
	telemetry.SchedulerValidationsFired.Inc()

	schedule, err := cron.ParseStandard(v.CronExpr)
	if err != nil {
		return fmt.Errorf("parse cron %q for validation %q: %w", v.CronExpr, v.Name, err)
	}
	nextRun := schedule.Next(now)

	if _, err := s.pool.Exec(ctx, `
		UPDATE scheduled_validations
		SET last_run_at = $1, next_run_at = $2, updated_at = $1
		WHERE id = $3
	`, now, nextRun, v.ID); err != nil {
		return fmt.Errorf("update scheduled_validation %q: %w", v.Name, err)
	}

	s.logger.Info("scheduled validation fired",
		slog.String("validation", v.Name),
		slog.String("execution_id", executionID),
		slog.Time("next_run", nextRun),
	)
	return nil
}
