package provision

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
)

// Result — итог одного запуска пайплайна.
type Result struct {
	// PipelineID — идентификатор запуска.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Status — терминальный статус запуска.
	Status domain.PipelineStatus `json:"status"`

	// AgentID — запись созданного агента. Nil, если создание
	// не дошло до персистентности.
	AgentID *uuid.UUID `json:"agent_id,omitempty"`

	// ExternalID — агент у внешнего голосового провайдера.
	ExternalID string `json:"external_id,omitempty"`

	// PhoneNumber — привязанный номер (E.164).
	PhoneNumber string `json:"phone_number,omitempty"`

	// CompletedStages — завершённые этапы в порядке завершения.
	CompletedStages []string `json:"completed_stages"`

	// FailedStages — упавшие этапы в порядке падения.
	FailedStages []string `json:"failed_stages,omitempty"`

	// StageResults — payload каждого завершённого этапа.
	StageResults map[string]map[string]any `json:"stage_results,omitempty"`

	// ResourceCount — число созданных внешних ресурсов.
	ResourceCount int `json:"resource_count"`

	// RollbackAttempted / RollbackSuccessful — итог компенсации.
	RollbackAttempted  bool `json:"rollback_attempted"`
	RollbackSuccessful bool `json:"rollback_successful"`

	// Error — последняя ошибка запуска.
	Error string `json:"error,omitempty"`

	// ExecutionTime — общее время выполнения.
	ExecutionTime time.Duration `json:"execution_time"`
}

// Succeeded возвращает true, если запуск дал работающего агента
// (полностью или частично).
func (r *Result) Succeeded() bool {
	switch r.Status {
	case domain.StatusCompleted, domain.StatusPartialTimeout, domain.StatusRecovered:
		return true
	default:
		return false
	}
}
