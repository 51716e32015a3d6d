package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/voxline/internal/rollback"
)

// RollbackRepo — репозиторий истории откатов.
// Реализует rollback.HistoryRecorder.
type RollbackRepo struct {
	pool *pgxpool.Pool
}

// NewRollbackRepo создаёт RollbackRepo.
func NewRollbackRepo(pool *pgxpool.Pool) *RollbackRepo {
	return &RollbackRepo{pool: pool}
}

// Append добавляет запись истории откатов.
func (r *RollbackRepo) Append(ctx context.Context, entry *rollback.HistoryEntry) error {
	failuresJSON, err := json.Marshal(entry.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	query := `
		INSERT INTO rollback_history (id, pipeline_id, tenant_id, strategy, status,
		                              resource_count, rolled_back, failed_count,
		                              failures, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		entry.ID,
		entry.PipelineID,
		entry.TenantID,
		entry.Strategy,
		entry.Status,
		entry.ResourceCount,
		entry.RolledBack,
		entry.FailedCount,
		failuresJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rollback history: %w", err)
	}
	return nil
}

// ListByTenant возвращает историю откатов клиента, новые первыми.
func (r *RollbackRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]rollback.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, pipeline_id, tenant_id, strategy, status, resource_count,
		       rolled_back, failed_count, failures, created_at
		FROM rollback_history
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rollback history: %w", err)
	}
	defer rows.Close()

	var entries []rollback.HistoryEntry
	for rows.Next() {
		var entry rollback.HistoryEntry
		var failuresJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.PipelineID,
			&entry.TenantID,
			&entry.Strategy,
			&entry.Status,
			&entry.ResourceCount,
			&entry.RolledBack,
			&entry.FailedCount,
			&failuresJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rollback history: %w", err)
		}
		if failuresJSON != nil {
			if err := json.Unmarshal(failuresJSON, &entry.Failures); err != nil {
				return nil, fmt.Errorf("unmarshal failures: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ListFailed возвращает записи с неуспешными компенсациями —
// кандидатов на дочистку reaper'ом.
func (r *RollbackRepo) ListFailed(ctx context.Context, limit int) ([]rollback.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, pipeline_id, tenant_id, strategy, status, resource_count,
		       rolled_back, failed_count, failures, created_at
		FROM rollback_history
		WHERE failed_count > 0
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed rollbacks: %w", err)
	}
	defer rows.Close()

	var entries []rollback.HistoryEntry
	for rows.Next() {
		var entry rollback.HistoryEntry
		var failuresJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.PipelineID,
			&entry.TenantID,
			&entry.Strategy,
			&entry.Status,
			&entry.ResourceCount,
			&entry.RolledBack,
			&entry.FailedCount,
			&failuresJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan rollback history: %w", err)
		}
		if failuresJSON != nil {
			if err := json.Unmarshal(failuresJSON, &entry.Failures); err != nil {
				return nil, fmt.Errorf("unmarshal failures: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkResolved помечает запись дочищенной: счётчик неуспехов
// обнуляется после успешного повторного прохода.
func (r *RollbackRepo) MarkResolved(ctx context.Context, entry *rollback.HistoryEntry) error {
	query := `
		UPDATE rollback_history
		SET failed_count = 0, failures = '[]'::jsonb, status = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, entry.ID, rollback.ReportSuccess)
	if err != nil {
		return fmt.Errorf("mark rollback resolved: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
