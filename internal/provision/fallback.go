package provision

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/services"
)

// FallbackContent строит минимальный контент сайта из его доменного
// имени. Используется, когда обход невозможен (сайт недоступен) или
// стратегия требует пропустить сеть ради экономии бюджета.
//
// Текст намеренно содержит опорные слова всех трёх категорий базы
// знаний, чтобы rule-based извлечение дало непустой результат.
func FallbackContent(websiteURL, agentName string) *services.CrawlResult {
	company := companyFromURL(websiteURL, agentName)

	text := strings.Join([]string{
		fmt.Sprintf("%s is a company serving customers through its website %s.", company, websiteURL),
		fmt.Sprintf("The team at %s provides products and services tailored to customer needs.", company),
		fmt.Sprintf("To contact %s, visit %s for phone, email and address details.", company, websiteURL),
	}, " ")

	return &services.CrawlResult{
		URL: websiteURL,
		Pages: []services.Page{
			{URL: websiteURL, Title: company, Text: text},
		},
		CrawledAt: time.Now(),
		Fallback:  true,
	}
}

// companyFromURL выводит название компании из доменного имени:
// www и TLD отбрасываются, первая буква — заглавная.
func companyFromURL(websiteURL, fallbackName string) string {
	u, err := url.Parse(websiteURL)
	if err != nil || u.Host == "" {
		return fallbackName
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")
	label, _, _ := strings.Cut(host, ".")
	if label == "" {
		return fallbackName
	}

	return strings.ToUpper(label[:1]) + label[1:]
}

// ScoreNumber оценивает кандидата номера по пожеланиям клиента.
//
// Совпадение кода зоны весит больше всего, затем желаемая подстрока,
// затем «запоминаемость» хвоста номера.
func ScoreNumber(number string, prefs domain.PhonePreferences) int {
	digits := digitsOf(number)
	national := digits
	if prefs.CountryCode == "" || prefs.CountryCode == "US" {
		national = strings.TrimPrefix(digits, "1")
	}

	score := 0
	if prefs.AreaCode != "" && strings.HasPrefix(national, digitsOf(prefs.AreaCode)) {
		score += 50
	}
	if prefs.Contains != "" && strings.Contains(national, digitsOf(prefs.Contains)) {
		score += 30
	}
	score += memorabilityScore(national)

	return score
}

// PickNumber выбирает лучшего кандидата. При равных оценках побеждает
// более ранний: провайдер выдаёт кандидатов в порядке доступности.
func PickNumber(candidates []services.PhoneCandidate, prefs domain.PhonePreferences) services.PhoneCandidate {
	best := candidates[0]
	bestScore := ScoreNumber(best.Number, prefs)

	for _, cand := range candidates[1:] {
		if score := ScoreNumber(cand.Number, prefs); score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best
}

// memorabilityScore оценивает хвост номера: одинаковые или
// чередующиеся последние цифры легче запомнить.
func memorabilityScore(national string) int {
	if len(national) < 4 {
		return 0
	}
	tail := national[len(national)-4:]

	switch {
	case tail[0] == tail[1] && tail[1] == tail[2] && tail[2] == tail[3]:
		return 20
	case tail[0] == tail[2] && tail[1] == tail[3]:
		return 15
	case strings.HasSuffix(tail, "00"):
		return 5
	default:
		return 0
	}
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
