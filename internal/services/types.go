package services

import (
	"context"
	"time"

	"github.com/shaiso/voxline/internal/domain"
)

// Page — одна страница сайта.
type Page struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// CrawlResult — результат обхода сайта.
type CrawlResult struct {
	// URL — корневой адрес обхода.
	URL string `json:"url"`

	// Pages — собранные страницы.
	Pages []Page `json:"pages"`

	// CrawledAt — время обхода.
	CrawledAt time.Time `json:"crawled_at"`

	// FromCache — результат взят из кэша контента.
	FromCache bool `json:"from_cache,omitempty"`

	// Fallback — контент сгенерирован из домена, а не собран.
	Fallback bool `json:"fallback,omitempty"`
}

// TotalText возвращает суммарный объём текста в символах.
func (r *CrawlResult) TotalText() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Text)
	}
	return n
}

// Extraction — категоризованный контент сайта.
type Extraction struct {
	// Categories — категория → фрагменты контента.
	Categories map[string][]string `json:"categories"`

	// Description — краткое описание бизнеса.
	Description string `json:"description,omitempty"`

	// QualityScore — оценка качества извлечения, 0..1.
	QualityScore float64 `json:"quality_score"`

	// QualityIssues — замечания к качеству контента.
	QualityIssues []string `json:"quality_issues,omitempty"`

	// Method — способ извлечения: llm, rules или fallback.
	Method string `json:"method"`
}

// Crawler — обходчик сайта.
type Crawler interface {
	Crawl(ctx context.Context, url string, maxPages int) (*CrawlResult, error)
}

// Extractor — извлечение и категоризация контента.
type Extractor interface {
	Extract(ctx context.Context, content *CrawlResult) (*Extraction, error)
}

// AgentParams — параметры создания агента у голосового провайдера.
type AgentParams struct {
	Name          string
	Description   string
	Language      string
	VoiceID       string
	KnowledgeBase domain.KnowledgeBase
}

// AgentDirectory — клиент внешнего голосового провайдера.
type AgentDirectory interface {
	CreateAgent(ctx context.Context, params AgentParams) (externalID string, err error)
	DeleteAgent(ctx context.Context, externalID string) error
	AttachPhoneNumber(ctx context.Context, externalID, number string) error
	RegisterWebhook(ctx context.Context, externalID, url string) (webhookID string, err error)
	DeleteWebhook(ctx context.Context, webhookID string) error
}

// PhoneCandidate — кандидат телефонного номера от провайдера.
type PhoneCandidate struct {
	// Number — номер в формате E.164.
	Number string `json:"number"`

	// Region — регион номера.
	Region string `json:"region,omitempty"`

	// MonthlyCost — стоимость аренды в месяц, USD.
	MonthlyCost float64 `json:"monthly_cost,omitempty"`
}

// PhoneProvider — клиент телефонного провайдера.
type PhoneProvider interface {
	SearchNumbers(ctx context.Context, prefs domain.PhonePreferences, limit int) ([]PhoneCandidate, error)
	Provision(ctx context.Context, number string) (resourceID string, err error)
	Release(ctx context.Context, resourceID string) error
}
