package domain

import (
	"time"

	"github.com/google/uuid"
)

// Agent — голосовой агент, итоговый продукт пайплайна.
//
// Запись создаётся этапом agent_creation и дополняется на
// final_integration (телефонный номер, webhook). Хранится в Postgres.
type Agent struct {
	// ID — внутренний идентификатор агента.
	ID uuid.UUID `json:"id"`

	// TenantID — владелец агента.
	TenantID string `json:"tenant_id"`

	// Name — отображаемое имя.
	Name string `json:"name"`

	// Description — описание назначения агента.
	Description string `json:"description,omitempty"`

	// ExternalID — идентификатор агента у внешнего голосового провайдера.
	ExternalID string `json:"external_id,omitempty"`

	// PhoneNumber — привязанный телефонный номер (E.164).
	// Пусто, если provisioning номера не завершился.
	PhoneNumber string `json:"phone_number,omitempty"`

	// WebsiteURL — сайт, из которого собрана база знаний.
	WebsiteURL string `json:"website_url"`

	// Language — язык агента (BCP 47).
	Language string `json:"language"`

	// VoiceID — голос агента у провайдера.
	VoiceID string `json:"voice_id,omitempty"`

	// KnowledgeBase — база знаний по категориям.
	KnowledgeBase KnowledgeBase `json:"knowledge_base,omitempty"`

	// PipelineID — пайплайн, создавший агента.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// KnowledgeBase — база знаний агента: категория → фрагменты контента.
type KnowledgeBase map[string][]string

// Стандартные категории базы знаний. Сборка базы гарантирует их
// наличие даже при скудном контенте (пустая категория допустима).
const (
	KBCategoryOverview = "company_overview"
	KBCategoryContact  = "contact_information"
	KBCategoryProducts = "products_services"
)

// PopulatedCategories возвращает число категорий с непустым контентом.
func (kb KnowledgeBase) PopulatedCategories() int {
	n := 0
	for _, entries := range kb {
		if len(entries) > 0 {
			n++
		}
	}
	return n
}
