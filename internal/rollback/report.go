package rollback

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
)

// ReportStatus — агрегированный итог прохода компенсации.
type ReportStatus string

const (
	// ReportSuccess — все попытки компенсации успешны.
	ReportSuccess ReportStatus = "success"

	// ReportPartialSuccess — часть попыток успешна, часть упала.
	ReportPartialSuccess ReportStatus = "partial_success"

	// ReportFailed — ни одна попытка не успешна.
	ReportFailed ReportStatus = "failed"

	// ReportNoResources — компенсировать нечего.
	ReportNoResources ReportStatus = "no_resources"
)

// Failure — одна неуспешная попытка компенсации.
//
// Data ресурса сохраняется целиком: по записи из истории компенсацию
// можно повторить без живого State пайплайна.
type Failure struct {
	ResourceID string              `json:"resource_id"`
	Type       domain.ResourceType `json:"resource_type"`
	Detail     string              `json:"detail"`
	Data       map[string]any      `json:"data,omitempty"`
}

// Resource восстанавливает ресурс для повторной компенсации.
func (f Failure) Resource() domain.Resource {
	return domain.Resource{
		Type:     f.Type,
		ID:       f.ResourceID,
		Data:     f.Data,
		Priority: f.Type.RollbackPriority(),
	}
}

// Report — результат одного прохода компенсации.
//
// Report — собственный транзиентный отчёт менеджера: State пайплайна
// при компенсации не мутируется.
type Report struct {
	// PipelineID — пайплайн, чьи ресурсы компенсировались.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// TenantID — владелец пайплайна.
	TenantID string `json:"tenant_id"`

	// Strategy — применённая стратегия отката.
	Strategy StrategyType `json:"strategy"`

	// Status — агрегированный итог.
	Status ReportStatus `json:"status"`

	// RolledBack — идентификаторы успешно компенсированных ресурсов.
	RolledBack []string `json:"rolled_back,omitempty"`

	// Failures — неуспешные попытки.
	Failures []Failure `json:"failures,omitempty"`

	// Skipped — пропущенные ресурсы (preserve-типы, чужие этапы,
	// незарегистрированные типы).
	Skipped []string `json:"skipped,omitempty"`

	// StartedAt / FinishedAt — границы прохода.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Successful возвращает true, если проход обошёлся без падений.
func (r *Report) Successful() bool {
	return r.Status == ReportSuccess || r.Status == ReportNoResources
}

// HistoryEntry — запись истории откатов.
type HistoryEntry struct {
	ID            uuid.UUID    `json:"id"`
	PipelineID    uuid.UUID    `json:"pipeline_id"`
	TenantID      string       `json:"tenant_id"`
	Strategy      StrategyType `json:"strategy"`
	Status        ReportStatus `json:"status"`
	ResourceCount int          `json:"resource_count"`
	RolledBack    int          `json:"rolled_back"`
	FailedCount   int          `json:"failed_count"`
	Failures      []Failure    `json:"failures,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// HistoryRecorder — приёмник истории откатов.
// Реализуется repo.RollbackRepo; nil-рекордер допустим.
type HistoryRecorder interface {
	Append(ctx context.Context, entry *HistoryEntry) error
}
