// Package config — конфигурация сервисов Voxline из переменных окружения.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config — общая конфигурация сервисов.
type Config struct {
	// HTTPPort — порт API-сервера.
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// DatabaseURL — DSN Postgres. Пустое значение — дефолт для локальной разработки.
	DatabaseURL string `env:"DB_URL"`

	// RabbitURL — URL RabbitMQ. Пустое значение — дефолт для локальной разработки.
	RabbitURL string `env:"RABBITMQ_URL"`

	// Redis — кэш контента сайтов. Пустой адрес — in-memory кэш.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// ContentCacheTTL — срок жизни закэшированного контента сайта.
	ContentCacheTTL time.Duration `env:"CONTENT_CACHE_TTL" envDefault:"1h"`

	// LLM — извлечение знаний через Anthropic API.
	// Пустой ключ — только rule-based извлечение.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-5-haiku-latest"`

	// Voice provider — создание голосовых агентов.
	VoiceAPIURL string `env:"VOICE_API_URL"`
	VoiceAPIKey string `env:"VOICE_API_KEY"`

	// Phone provider — поиск и покупка номеров.
	PhoneAPIURL string `env:"PHONE_API_URL"`
	PhoneAPIKey string `env:"PHONE_API_KEY"`

	// WebhookBaseURL — публичный адрес API для регистрации webhook'ов
	// у голосового провайдера.
	WebhookBaseURL string `env:"WEBHOOK_BASE_URL" envDefault:"http://localhost:8080"`

	// CrawlMaxPages — максимум страниц за один обход сайта.
	CrawlMaxPages int `env:"CRAWL_MAX_PAGES" envDefault:"5"`

	// PipelineBudget — общий бюджет времени на один запуск.
	PipelineBudget time.Duration `env:"PIPELINE_BUDGET" envDefault:"3m"`

	// ReaperSchedule — cron-расписание фоновой дочистки.
	ReaperSchedule string `env:"REAPER_SCHEDULE" envDefault:"*/5 * * * *"`
}

// Load читает конфигурацию из окружения.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}
