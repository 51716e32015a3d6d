package provision

import (
	"context"
	"testing"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/services"
)

func TestScoreNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		prefs  domain.PhonePreferences
		want   int
	}{
		{
			name:   "совпадение кода зоны",
			number: "+14155551234",
			prefs:  domain.PhonePreferences{AreaCode: "415", CountryCode: "US"},
			want:   50,
		},
		{
			name:   "код зоны и хвост из одинаковых цифр",
			number: "+14155557777",
			prefs:  domain.PhonePreferences{AreaCode: "415", CountryCode: "US"},
			want:   70,
		},
		{
			name:   "желаемая подстрока",
			number: "+12125550042",
			prefs:  domain.PhonePreferences{Contains: "0042", CountryCode: "US"},
			want:   30,
		},
		{
			name:   "чередующийся хвост без совпадений предпочтений",
			number: "+13035551212",
			prefs:  domain.PhonePreferences{AreaCode: "415", CountryCode: "US"},
			want:   15,
		},
		{
			name:   "хвост на два нуля",
			number: "+14155550100",
			prefs:  domain.PhonePreferences{AreaCode: "415", CountryCode: "US"},
			want:   55,
		},
		{
			name:   "ничего не совпало",
			number: "+12125551234",
			prefs:  domain.PhonePreferences{AreaCode: "415", CountryCode: "US"},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreNumber(tt.number, tt.prefs); got != tt.want {
				t.Errorf("ScoreNumber(%s) = %d, want %d", tt.number, got, tt.want)
			}
		})
	}
}

func TestPickNumber(t *testing.T) {
	candidates := []services.PhoneCandidate{
		{Number: "+12125551234"},
		{Number: "+14155559876"},
		{Number: "+13035551212"},
	}

	prefs := domain.PhonePreferences{AreaCode: "415", CountryCode: "US"}
	if got := PickNumber(candidates, prefs); got.Number != "+14155559876" {
		t.Errorf("PickNumber выбрал %s, ожидался номер с кодом 415", got.Number)
	}

	// При равных оценках побеждает более ранний кандидат
	noPrefs := domain.PhonePreferences{CountryCode: "US"}
	flat := []services.PhoneCandidate{
		{Number: "+12125551234"},
		{Number: "+16465554321"},
	}
	if got := PickNumber(flat, noPrefs); got.Number != "+12125551234" {
		t.Errorf("PickNumber выбрал %s, ожидался первый кандидат", got.Number)
	}
}

func TestFallbackContentCompanyName(t *testing.T) {
	result := FallbackContent("https://www.acme-corp.com", "Support Bot")

	if !result.Fallback {
		t.Error("fallback-контент должен быть помечен флагом Fallback")
	}
	if len(result.Pages) == 0 {
		t.Fatal("fallback-контент не содержит страниц")
	}
	if result.Pages[0].Title != "Acme-corp" {
		t.Errorf("название компании = %q, ожидалось Acme-corp", result.Pages[0].Title)
	}

	// Некорректный URL — имя агента вместо домена
	broken := FallbackContent("not a url", "Support Bot")
	if broken.Pages[0].Title != "Support Bot" {
		t.Errorf("для некорректного URL ожидалось имя агента, получено %q", broken.Pages[0].Title)
	}
}

func TestFallbackContentFeedsRuleExtraction(t *testing.T) {
	// Fallback-текст обязан давать непустое извлечение по всем
	// трём категориям: иначе база знаний агента останется пустой.
	content := FallbackContent("https://acme.com", "Support Bot")

	extraction, err := services.NewKeywordExtractor().Extract(context.Background(), content)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for category, entries := range extraction.Categories {
		if len(entries) == 0 {
			t.Errorf("категория %s пуста для fallback-контента", category)
		}
	}
}
