package services

import (
	"context"
	"strings"

	"github.com/shaiso/voxline/internal/domain"
)

// categoryKeywords — ключевые слова rule-based категоризации.
var categoryKeywords = map[string][]string{
	domain.KBCategoryOverview: {
		"about", "mission", "story", "founded", "team", "company",
		"who we are", "history", "vision",
	},
	domain.KBCategoryContact: {
		"contact", "phone", "email", "address", "location",
		"hours", "call us", "reach us", "support",
	},
	domain.KBCategoryProducts: {
		"product", "service", "pricing", "plan", "offer",
		"solution", "feature", "package", "buy",
	},
}

// KeywordExtractor — rule-based категоризация контента.
//
// Используется как fallback, когда LLM недоступен или стратегия
// требует дешёвый путь. Предложения раскладываются по категориям
// по совпадению ключевых слов.
type KeywordExtractor struct{}

// NewKeywordExtractor создаёт rule-based экстрактор.
func NewKeywordExtractor() *KeywordExtractor {
	return &KeywordExtractor{}
}

// Extract раскладывает контент по категориям базы знаний.
func (e *KeywordExtractor) Extract(ctx context.Context, content *CrawlResult) (*Extraction, error) {
	categories := map[string][]string{
		domain.KBCategoryOverview: {},
		domain.KBCategoryContact:  {},
		domain.KBCategoryProducts: {},
	}

	for _, page := range content.Pages {
		for _, sentence := range splitSentences(page.Text) {
			lower := strings.ToLower(sentence)
			for category, keywords := range categoryKeywords {
				if matchesAny(lower, keywords) {
					categories[category] = appendCapped(categories[category], sentence, 20)
				}
			}
		}
	}

	extraction := &Extraction{
		Categories:  categories,
		Description: deriveDescription(content, categories),
		Method:      "rules",
	}
	extraction.QualityScore, extraction.QualityIssues = AssessQuality(content, categories)

	return extraction, nil
}

// AssessQuality оценивает извлечение: доля заполненных категорий
// с поправкой на объём исходного контента.
func AssessQuality(content *CrawlResult, categories map[string][]string) (float64, []string) {
	var issues []string

	populated := 0
	for category, entries := range categories {
		if len(entries) > 0 {
			populated++
		} else {
			issues = append(issues, "no content for "+category)
		}
	}

	score := float64(populated) / 3.0

	if content.TotalText() < 500 {
		issues = append(issues, "source content is very short")
		score *= 0.5
	}
	if content.Fallback {
		issues = append(issues, "content generated from domain fallback")
		score *= 0.6
	}

	return score, issues
}

// deriveDescription строит краткое описание из обзора или заголовка.
func deriveDescription(content *CrawlResult, categories map[string][]string) string {
	if overview := categories[domain.KBCategoryOverview]; len(overview) > 0 {
		return truncate(overview[0], 300)
	}
	if len(content.Pages) > 0 && content.Pages[0].Title != "" {
		return content.Pages[0].Title
	}
	return ""
}

func splitSentences(text string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		s := strings.TrimSpace(part)
		// Слишком короткие фрагменты — навигация и мусор
		if len(s) >= 25 {
			out = append(out, s)
		}
	}
	return out
}

func matchesAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func appendCapped(list []string, s string, max int) []string {
	if len(list) >= max {
		return list
	}
	return append(list, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
