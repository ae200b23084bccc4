//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telprobe/telprobe/internal/domain"
	"github.com/telprobe/telprobe/internal/postgres"
)

func newRepo(t *testing.T) postgres.RunRepository {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return postgres.NewRepository(pool)
}

func newRun(moduleName string) *domain.ModuleRun {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ModuleRun{
		ID:         uuid.New().String(),
		ModuleID:   uuid.New().String(),
		ModuleName: moduleName,
		DeviceID:   "dev-1",
		Status:     domain.StatusQueued,
		Parameters: []byte(`{"number":"+33612345678","calls":2}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := newRun("call_test")
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "call_test", got.ModuleName)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.False(t, got.Success)
	assert.JSONEq(t, string(run.Parameters), string(got.Parameters))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.DurationMs)
}

func TestRepository_UpdateFullLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := newRun("sms_test")
	require.NoError(t, repo.Create(ctx, run))

	started := time.Now().UTC().Truncate(time.Microsecond)
	run.Status = domain.StatusRunning
	run.StartedAt = &started
	run.UpdatedAt = started
	require.NoError(t, repo.Update(ctx, run))

	completed := time.Now().UTC().Truncate(time.Microsecond)
	durationMs := int64(4200)
	run.Status = domain.StatusCompleted
	run.Success = true
	run.Result = []byte(`{"module":"sms_test","success":true,"total_sms":2,"delivered_sms":2}`)
	run.CompletedAt = &completed
	run.DurationMs = &durationMs
	run.UpdatedAt = completed
	require.NoError(t, repo.Update(ctx, run))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.True(t, got.Success)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.DurationMs)
	assert.Equal(t, durationMs, *got.DurationMs)
	assert.JSONEq(t, string(run.Result), string(got.Result))
}

func TestRepository_GetByID_NotFound(t *testing.T) {
	repo := newRepo(t)

	_, err := repo.GetByID(context.Background(), uuid.New().String())
	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRepository_UpdateMissingRun(t *testing.T) {
	repo := newRepo(t)

	run := newRun("network_check")
	var notFound *domain.RunNotFoundError
	require.ErrorAs(t, repo.Update(context.Background(), run), &notFound)
}

func TestRepository_ListByStatus(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := newRun("network_perf")
	run.Status = domain.StatusFailed
	run.ErrorMessage = "device bridge unreachable"
	require.NoError(t, repo.Create(ctx, run))

	failed, err := repo.ListByStatus(ctx, domain.StatusFailed, 50)
	require.NoError(t, err)

	var found bool
	for _, r := range failed {
		if r.ID == run.ID {
			found = true
			assert.Equal(t, "device bridge unreachable", r.ErrorMessage)
		}
	}
	assert.True(t, found)
}
