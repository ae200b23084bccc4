// Package postgres persists module runs and scheduled validations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telprobe/telprobe/internal/domain"
)

// RunRepository abstracts all database access for module runs.
type RunRepository interface {
	Create(ctx context.Context, run *domain.ModuleRun) error
	Update(ctx context.Context, run *domain.ModuleRun) error
	GetByID(ctx context.Context, id string) (*domain.ModuleRun, error)
	ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.ModuleRun, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the RunRepository interface.
func NewRepository(pool *pgxpool.Pool) RunRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) Create(ctx context.Context, run *domain.ModuleRun) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO module_runs
			(id, module_id, module_name, device_id, status, success,
			 error_message, parameters, result, started_at, completed_at,
			 duration_ms, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		run.ID, run.ModuleID, run.ModuleName, run.DeviceID,
		string(run.Status), run.Success, run.ErrorMessage,
		run.Parameters, run.Result, run.StartedAt, run.CompletedAt,
		run.DurationMs, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, run *domain.ModuleRun) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE module_runs
		SET status = $1, success = $2, error_message = $3, result = $4,
		    started_at = $5, completed_at = $6, duration_ms = $7, updated_at = $8
		WHERE id = $9
	`,
		string(run.Status), run.Success, run.ErrorMessage, run.Result,
		run.StartedAt, run.CompletedAt, run.DurationMs, run.UpdatedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.RunNotFoundError{RunID: run.ID}
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*domain.ModuleRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, module_id, module_name, device_id, status, success,
		       error_message, parameters, result, started_at, completed_at,
		       duration_ms, created_at, updated_at
		FROM module_runs
		WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.RunNotFoundError{RunID: id}
		}
		return nil, err
	}
	return run, nil
}

func (r *repository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.ModuleRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, module_id, module_name, device_id, status, success,
		       error_message, parameters, result, started_at, completed_at,
		       duration_ms, created_at, updated_at
		FROM module_runs
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list runs by status %s: %w", status, err)
	}
	defer rows.Close()

	var runs []*domain.ModuleRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// scanRun reads a module run row from any pgx row type.
func scanRun(row interface {
	Scan(...any) error
}) (*domain.ModuleRun, error) {
	var run domain.ModuleRun
	var statusStr string
	err := row.Scan(
		&run.ID, &run.ModuleID, &run.ModuleName, &run.DeviceID,
		&statusStr, &run.Success, &run.ErrorMessage,
		&run.Parameters, &run.Result, &run.StartedAt, &run.CompletedAt,
		&run.DurationMs, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.Status(statusStr)
	return &run, nil
}
