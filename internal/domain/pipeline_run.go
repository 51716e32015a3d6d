package domain

import (
	"time"

	"github.com/google/uuid"
)

// PipelineRun — терминальная запись запуска пайплайна.
//
// Пока запуск активен, его состояние живёт в памяти координатора;
// запись в Postgres создаётся при старте и дополняется итогом,
// чтобы status-запросы переживали реестр активных запусков.
type PipelineRun struct {
	// ID — идентификатор пайплайна.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец запуска.
	TenantID string `json:"tenant_id"`

	// AgentID — созданный агент. Nil, если создание не дошло до записи.
	AgentID *uuid.UUID `json:"agent_id,omitempty"`

	// Status — текущий или итоговый статус.
	Status PipelineStatus `json:"status"`

	// WebsiteURL — сайт из исходного запроса.
	WebsiteURL string `json:"website_url"`

	// CompletedStages — завершённые этапы в порядке завершения.
	CompletedStages []string `json:"completed_stages,omitempty"`

	// FailedStages — упавшие этапы в порядке падения.
	FailedStages []string `json:"failed_stages,omitempty"`

	// ResourceCount — число созданных ресурсов.
	ResourceCount int `json:"resource_count"`

	// RollbackAttempted / RollbackSuccessful — итог компенсации.
	RollbackAttempted  bool `json:"rollback_attempted"`
	RollbackSuccessful bool `json:"rollback_successful"`

	// Error — последняя ошибка запуска.
	Error string `json:"error,omitempty"`

	// ExecutionTime — общее время выполнения.
	ExecutionTime time.Duration `json:"execution_time"`

	// StartedAt — время старта.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время терминального перехода.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
