package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shaiso/voxline/internal/domain"
)

// LLMExtractor — категоризация контента через Anthropic API.
//
// При любой ошибке (недоступность API, неразборчивый ответ)
// вызывающая сторона откатывается на KeywordExtractor.
type LLMExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

// NewLLMExtractor создаёт LLM-экстрактор. Модель задаётся конфигом.
func NewLLMExtractor(apiKey, model string, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 2048,
		logger:    logger,
	}
}

// llmExtraction — ожидаемая JSON-структура ответа модели.
type llmExtraction struct {
	CompanyOverview    []string `json:"company_overview"`
	ContactInformation []string `json:"contact_information"`
	ProductsServices   []string `json:"products_services"`
	Description        string   `json:"description"`
}

// Extract категоризует контент через LLM.
func (e *LLMExtractor) Extract(ctx context.Context, content *CrawlResult) (*Extraction, error) {
	prompt := e.buildPrompt(content)

	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	parsed, err := parseLLMResponse(text.String())
	if err != nil {
		return nil, fmt.Errorf("llm response: %w", err)
	}

	categories := map[string][]string{
		domain.KBCategoryOverview: parsed.CompanyOverview,
		domain.KBCategoryContact:  parsed.ContactInformation,
		domain.KBCategoryProducts: parsed.ProductsServices,
	}

	extraction := &Extraction{
		Categories:  categories,
		Description: parsed.Description,
		Method:      "llm",
	}
	extraction.QualityScore, extraction.QualityIssues = AssessQuality(content, categories)

	return extraction, nil
}

// buildPrompt собирает промпт из собранного контента.
// Контент обрезается, чтобы не раздувать запрос.
func (e *LLMExtractor) buildPrompt(content *CrawlResult) string {
	var b strings.Builder
	b.WriteString("Categorize the following website content for a voice agent knowledge base.\n")
	b.WriteString("Respond with ONLY a JSON object with keys: ")
	b.WriteString(`"company_overview", "contact_information", "products_services" (arrays of strings) and "description" (string).`)
	b.WriteString("\n\nWebsite: ")
	b.WriteString(content.URL)
	b.WriteString("\n\nContent:\n")

	budget := 12000
	for _, page := range content.Pages {
		if budget <= 0 {
			break
		}
		chunk := page.Text
		if len(chunk) > budget {
			chunk = chunk[:budget]
		}
		b.WriteString("--- ")
		b.WriteString(page.Title)
		b.WriteString(" ---\n")
		b.WriteString(chunk)
		b.WriteString("\n")
		budget -= len(chunk)
	}

	return b.String()
}

// parseLLMResponse выделяет JSON-объект из ответа модели.
func parseLLMResponse(text string) (*llmExtraction, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var parsed llmExtraction
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}
