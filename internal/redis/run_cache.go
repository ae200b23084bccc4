// Package redis provides the Redis client and the module run cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telprobe/telprobe/internal/domain"
)

const runTTL = 24 * time.Hour

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RunCache is the fast-read view of module runs. Postgres remains the
// source of truth; the cache serves the status API and expires after 24h.
type RunCache interface {
	SetStatus(ctx context.Context, runID string, status domain.Status) error
	GetStatus(ctx context.Context, runID string) (domain.Status, error)
	SetRun(ctx context.Context, run *domain.ModuleRun) error
	GetRun(ctx context.Context, runID string) (*domain.ModuleRun, error)
}

type runCache struct {
	client *redis.Client
}

// NewRunCache wraps a Redis client with the RunCache interface.
func NewRunCache(client *redis.Client) RunCache {
	return &runCache{client: client}
}

func statusKey(runID string) string { return "run:state:" + runID }
func metaKey(runID string) string   { return "run:meta:" + runID }

func (c *runCache) SetStatus(ctx context.Context, runID string, status domain.Status) error {
	if err := c.client.Set(ctx, statusKey(runID), string(status), runTTL).Err(); err != nil {
		return fmt.Errorf("cache status for run %s: %w", runID, err)
	}
	return nil
}

func (c *runCache) GetStatus(ctx context.Context, runID string) (domain.Status, error) {
	val, err := c.client.Get(ctx, statusKey(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.RunNotFoundError{RunID: runID}
		}
		return "", fmt.Errorf("get status for run %s: %w", runID, err)
	}
	return domain.Status(val), nil
}

func (c *runCache) SetRun(ctx context.Context, run *domain.ModuleRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	pipe := c.client.Pipeline()
	pipe.Set(ctx, metaKey(run.ID), data, runTTL)
	pipe.Set(ctx, statusKey(run.ID), string(run.Status), runTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache run %s: %w", run.ID, err)
	}
	return nil
}

func (c *runCache) GetRun(ctx context.Context, runID string) (*domain.ModuleRun, error) {
	data, err := c.client.Get(ctx, metaKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.RunNotFoundError{RunID: runID}
		}
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	var run domain.ModuleRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode cached run %s: %w", runID, err)
	}
	return &run, nil
}
