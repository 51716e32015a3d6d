package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ProvisionRequest — запрос на создание голосового агента.
//
// Запрос приходит через API, валидируется и передаётся пайплайну
// без изменений. Поля с пустыми значениями заполняются этапами
// из извлечённого контента (например, описание из сайта).
type ProvisionRequest struct {
	// TenantID — идентификатор клиента, владельца агента.
	TenantID string `json:"tenant_id"`

	// AgentName — отображаемое имя агента.
	AgentName string `json:"agent_name"`

	// Description — описание назначения агента. Если пусто,
	// формируется из контента сайта.
	Description string `json:"description,omitempty"`

	// WebsiteURL — сайт, из которого собирается база знаний.
	WebsiteURL string `json:"website_url"`

	// VoiceID — голос агента у внешнего провайдера.
	// Если пусто, используется голос по умолчанию.
	VoiceID string `json:"voice_id,omitempty"`

	// Language — язык агента (BCP 47). По умолчанию "en-US".
	Language string `json:"language,omitempty"`

	// PhonePreferences — пожелания к телефонному номеру.
	PhonePreferences PhonePreferences `json:"phone_preferences,omitempty"`
}

// PhonePreferences — пожелания к выбору телефонного номера.
// Используются при скоринге кандидатов от провайдера.
type PhonePreferences struct {
	// AreaCode — желаемый код зоны (например, "415").
	AreaCode string `json:"area_code,omitempty"`

	// Contains — желаемая подстрока в номере.
	Contains string `json:"contains,omitempty"`

	// CountryCode — страна номера. По умолчанию "US".
	CountryCode string `json:"country_code,omitempty"`
}

// Validate проверяет обязательные поля запроса.
func (r *ProvisionRequest) Validate() error {
	var errs []error

	if strings.TrimSpace(r.TenantID) == "" {
		errs = append(errs, errors.New("tenant_id is required"))
	}
	if strings.TrimSpace(r.AgentName) == "" {
		errs = append(errs, errors.New("agent_name is required"))
	}
	if strings.TrimSpace(r.WebsiteURL) == "" {
		errs = append(errs, errors.New("website_url is required"))
	} else if u, err := url.Parse(r.WebsiteURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("website_url must be an http(s) URL: %q", r.WebsiteURL))
	}

	return errors.Join(errs...)
}

// Normalize заполняет значения по умолчанию для необязательных полей.
func (r *ProvisionRequest) Normalize() {
	if r.Language == "" {
		r.Language = "en-US"
	}
	if r.PhonePreferences.CountryCode == "" {
		r.PhonePreferences.CountryCode = "US"
	}
}
