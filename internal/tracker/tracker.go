// Package tracker owns the module run lifecycle.
//
// Allowed transitions:
//
//	QUEUED  → RUNNING            (MarkRunning)
//	RUNNING → COMPLETED          (MarkCompleted)
//	QUEUED  → FAILED             (MarkFailed, e.g. unknown module)
//	RUNNING → FAILED             (MarkFailed)
//
// Terminal states are final. A transition call on a terminal run returns
// *domain.StateError and leaves the run untouched.
package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/internal/postgres"
	"github.com/telprobe/telprobe/internal/redis"
)

// Publisher pushes run updates to live subscribers.
type Publisher interface {
	PublishRunUpdate(executionID string, run *domain.ModuleRun)
}

// Tracker drives one ModuleRun through its lifecycle. Persistence to
// Postgres, the Redis cache and the live publisher are all best-effort:
// a storage failure is logged and the in-memory transition stands, so a
// flaky store never wedges a worker.
type Tracker struct {
	mu          sync.Mutex
	run         *domain.ModuleRun
	repo        postgres.RunRepository
	cache       redis.RunCache
	pub         Publisher
	executionID string
	logger      *slog.Logger
}

// New creates a Tracker for the given run. repo, cache and pub may each
// be nil, in which case that sink is skipped.
func New(run *domain.ModuleRun, executionID string, repo postgres.RunRepository, cache redis.RunCache, pub Publisher, logger *slog.Logger) *Tracker {
	return &Tracker{
		run:         run,
		repo:        repo,
		cache:       cache,
		pub:         pub,
		executionID: executionID,
		logger:      logger,
	}
}

// Run returns a snapshot of the tracked run.
func (t *Tracker) Run() domain.ModuleRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.run
}

// MarkRunning transitions QUEUED → RUNNING and stamps started_at.
func (t *Tracker) MarkRunning(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run.Status != domain.StatusQueued {
		return &domain.StateError{RunID: t.run.ID, From: t.run.Status, Event: "mark_running"}
	}

	now := time.Now().UTC()
	t.run.Status = domain.StatusRunning
	t.run.StartedAt = &now
	t.run.UpdatedAt = now

	t.flush(ctx)
	t.logger.Info("module run started",
		slog.String("run_id", t.run.ID),
		slog.String("module", t.run.ModuleName),
	)
	return nil
}

// MarkCompleted transitions RUNNING → COMPLETED. The success flag is
// recorded verbatim: a run can complete with success=false, "completed"
// and "succeeded" are independent axes.
func (t *Tracker) MarkCompleted(ctx context.Context, success bool, result domain.ModuleResult, durationMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run.Status != domain.StatusRunning {
		return &domain.StateError{RunID: t.run.ID, From: t.run.Status, Event: "mark_completed"}
	}

	now := time.Now().UTC()
	t.run.Status = domain.StatusCompleted
	t.run.Success = success
	t.run.CompletedAt = &now
	t.run.UpdatedAt = now
	t.run.DurationMs = &durationMs

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			t.logger.Error("failed to marshal module result",
				slog.String("run_id", t.run.ID),
				slog.String("error", err.Error()),
			)
		} else {
			t.run.Result = data
		}
	}

	t.flush(ctx)
	t.logger.Info("module run completed",
		slog.String("run_id", t.run.ID),
		slog.String("module", t.run.ModuleName),
		slog.Bool("success", success),
		slog.Int64("duration_ms", durationMs),
	)
	return nil
}

// MarkFailed transitions QUEUED or RUNNING → FAILED. duration_ms stays
// unset; it is only meaningful for completed runs.
func (t *Tracker) MarkFailed(ctx context.Context, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.run.Status.IsTerminal() {
		return &domain.StateError{RunID: t.run.ID, From: t.run.Status, Event: "mark_failed"}
	}

	now := time.Now().UTC()
	t.run.Status = domain.StatusFailed
	t.run.Success = false
	t.run.ErrorMessage = reason
	t.run.CompletedAt = &now
	t.run.UpdatedAt = now

	t.flush(ctx)
	t.logger.Warn("module run failed",
		slog.String("run_id", t.run.ID),
		slog.String("module", t.run.ModuleName),
		slog.String("reason", reason),
	)
	return nil
}

// flush pushes the current run state to every configured sink.
// Caller holds t.mu.
func (t *Tracker) flush(ctx context.Context) {
	if t.repo != nil {
		if err := t.repo.Update(ctx, t.run); err != nil {
			t.logger.Error("failed to persist run",
				slog.String("run_id", t.run.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.cache != nil {
		if err := t.cache.SetRun(ctx, t.run); err != nil {
			t.logger.Error("failed to cache run",
				slog.String("run_id", t.run.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.pub != nil {
		snapshot := *t.run
		t.pub.PublishRunUpdate(t.executionID, &snapshot)
	}
}
