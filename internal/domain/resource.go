package domain

import "time"

// ResourceType — тип внешнего ресурса, созданного этапом пайплайна.
//
// Множество типов закрытое: для каждого типа в rollback-реестре
// зарегистрирован свой компенсатор. Неизвестный тип при откате
// логируется и пропускается, но никогда не приводит к панике.
type ResourceType string

const (
	// ResourceVoiceAgent — голосовой агент у внешнего провайдера.
	ResourceVoiceAgent ResourceType = "voice_agent"

	// ResourcePhoneNumber — арендованный телефонный номер.
	ResourcePhoneNumber ResourceType = "phone_number"

	// ResourceWebhook — webhook-подписка на события агента.
	ResourceWebhook ResourceType = "webhook"

	// ResourceAgentRecord — запись агента в нашей базе данных.
	ResourceAgentRecord ResourceType = "agent_record"

	// ResourceKnowledgeBase — база знаний, собранная из контента сайта.
	ResourceKnowledgeBase ResourceType = "knowledge_base"
)

// rollbackPriorities — порядок компенсации: ресурсы с большим
// приоритетом откатываются раньше (сначала внешние зависимости,
// затем внутренние записи).
var rollbackPriorities = map[ResourceType]int{
	ResourceWebhook:       10,
	ResourcePhoneNumber:   8,
	ResourceVoiceAgent:    5,
	ResourceAgentRecord:   5,
	ResourceKnowledgeBase: 3,
}

// RollbackPriority возвращает приоритет компенсации для типа ресурса.
// Для неизвестных типов возвращает 1.
func (t ResourceType) RollbackPriority() int {
	if p, ok := rollbackPriorities[t]; ok {
		return p
	}
	return 1
}

// Resource — внешний ресурс, созданный этапом пайплайна.
//
// Каждый этап декларирует созданные ресурсы в своём результате;
// State аккумулирует их в порядке создания. При откате список
// сортируется по убыванию приоритета (stable sort: ресурсы с равным
// приоритетом компенсируются в порядке создания).
type Resource struct {
	// Type — тип ресурса, определяет компенсатор и приоритет.
	Type ResourceType `json:"type"`

	// ID — идентификатор ресурса во внешней системе.
	ID string `json:"id"`

	// Stage — этап, создавший ресурс.
	Stage string `json:"stage"`

	// Data — дополнительные данные, нужные компенсатору
	// (например, провайдер номера или URL webhook).
	Data map[string]any `json:"data,omitempty"`

	// Priority — приоритет компенсации, зафиксированный в момент
	// регистрации ресурса.
	Priority int `json:"priority"`

	// CreatedAt — время регистрации ресурса.
	CreatedAt time.Time `json:"created_at"`
}
