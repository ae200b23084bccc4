//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telprobe/telprobe/internal/domain"
	redisstore "github.com/telprobe/telprobe/internal/redis"
)

func TestRunCache_SetGetStatus_RoundTrip(t *testing.T) {
	cache := redisstore.NewRunCache(newRedisClient(t))
	ctx := context.Background()

	require.NoError(t, cache.SetStatus(ctx, "run-1", domain.StatusRunning))

	got, err := cache.GetStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, got)
}

func TestRunCache_GetStatus_NotFound(t *testing.T) {
	cache := redisstore.NewRunCache(newRedisClient(t))

	_, err := cache.GetStatus(context.Background(), "does-not-exist")
	require.Error(t, err)

	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.RunID)
}

func TestRunCache_SetGetRun_RoundTrip(t *testing.T) {
	cache := redisstore.NewRunCache(newRedisClient(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	durationMs := int64(31500)
	run := &domain.ModuleRun{
		ID:         "run-cache-1",
		ModuleID:   "mod-1",
		ModuleName: "call_test",
		DeviceID:   "dev-1",
		Status:     domain.StatusCompleted,
		Success:    true,
		Result:     []byte(`{"module":"call_test","success":true}`),
		StartedAt:  &now,
		DurationMs: &durationMs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, cache.SetRun(ctx, run))

	got, err := cache.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.ModuleName, got.ModuleName)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.Success)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, durationMs, *got.DurationMs)
	assert.JSONEq(t, string(run.Result), string(got.Result))

	// SetRun also refreshes the fast status key.
	status, err := cache.GetStatus(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, status)
}

func TestRunCache_GetRun_NotFound(t *testing.T) {
	cache := redisstore.NewRunCache(newRedisClient(t))

	_, err := cache.GetRun(context.Background(), "missing-run")
	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, err, &notFound)
}
