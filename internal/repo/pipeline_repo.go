package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/voxline/internal/domain"
)

// PipelineRepo — репозиторий записей запусков пайплайна.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// Create создаёт запись запуска.
func (r *PipelineRepo) Create(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (id, tenant_id, status, website_url, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.TenantID,
		run.Status,
		run.WebsiteURL,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// Finalize записывает итог запуска.
func (r *PipelineRepo) Finalize(ctx context.Context, run *domain.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, agent_id = $3, completed_stages = $4, failed_stages = $5,
		    resource_count = $6, rollback_attempted = $7, rollback_successful = $8,
		    error = $9, execution_time_ms = $10, completed_at = $11
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.AgentID,
		run.CompletedStages,
		run.FailedStages,
		run.ResourceCount,
		run.RollbackAttempted,
		run.RollbackSuccessful,
		nullString(run.Error),
		run.ExecutionTime.Milliseconds(),
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("finalize pipeline run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает запись запуска.
func (r *PipelineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PipelineRun, error) {
	query := `
		SELECT id, tenant_id, status, agent_id, website_url, completed_stages,
		       failed_stages, resource_count, rollback_attempted, rollback_successful,
		       error, execution_time_ms, started_at, completed_at
		FROM pipeline_runs
		WHERE id = $1
	`
	return scanPipelineRun(r.pool.QueryRow(ctx, query, id))
}

// ListByTenant возвращает запуски клиента, новые первыми.
func (r *PipelineRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, status, agent_id, website_url, completed_stages,
		       failed_stages, resource_count, rollback_attempted, rollback_successful,
		       error, execution_time_ms, started_at, completed_at
		FROM pipeline_runs
		WHERE tenant_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanPipelineRun сканирует одну строку в PipelineRun.
func scanPipelineRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var runError *string
	var executionMs int64

	err := row.Scan(
		&run.ID,
		&run.TenantID,
		&run.Status,
		&run.AgentID,
		&run.WebsiteURL,
		&run.CompletedStages,
		&run.FailedStages,
		&run.ResourceCount,
		&run.RollbackAttempted,
		&run.RollbackSuccessful,
		&runError,
		&executionMs,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline run: %w", err)
	}

	if runError != nil {
		run.Error = *runError
	}
	run.ExecutionTime = time.Duration(executionMs) * time.Millisecond

	return &run, nil
}
