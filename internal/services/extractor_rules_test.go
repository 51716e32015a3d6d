package services

import (
	"context"
	"strings"
	"testing"

	"github.com/shaiso/voxline/internal/domain"
)

func crawlResultWith(text string) *CrawlResult {
	return &CrawlResult{
		URL:   "https://acme.com",
		Pages: []Page{{URL: "https://acme.com", Title: "Acme", Text: text}},
	}
}

func TestKeywordExtractorCategorizes(t *testing.T) {
	text := "Acme was founded in 2010 and our mission is great coffee for everyone. " +
		"Contact us by phone at 555-0100 or visit our downtown location anytime. " +
		"Our products include espresso machines and a monthly subscription service plan."

	extraction, err := NewKeywordExtractor().Extract(context.Background(), crawlResultWith(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if extraction.Method != "rules" {
		t.Errorf("expected method rules, got %s", extraction.Method)
	}
	for _, category := range []string{
		domain.KBCategoryOverview,
		domain.KBCategoryContact,
		domain.KBCategoryProducts,
	} {
		if len(extraction.Categories[category]) == 0 {
			t.Errorf("expected content in category %s", category)
		}
	}
}

func TestKeywordExtractorDescriptionFromOverview(t *testing.T) {
	text := "Acme was founded in 2010 as a family company serving the whole region faithfully."

	extraction, err := NewKeywordExtractor().Extract(context.Background(), crawlResultWith(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(extraction.Description, "Acme was founded") {
		t.Errorf("expected description from overview, got %q", extraction.Description)
	}
}

func TestKeywordExtractorDescriptionFallsBackToTitle(t *testing.T) {
	// Ни одно предложение не попадает в категории
	extraction, err := NewKeywordExtractor().Extract(context.Background(),
		crawlResultWith("Completely unrelated sentence without matching words here."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if extraction.Description != "Acme" {
		t.Errorf("expected page title as description, got %q", extraction.Description)
	}
}

func TestKeywordExtractorSkipsShortFragments(t *testing.T) {
	// Каждый фрагмент короче порога в 25 символов
	extraction, err := NewKeywordExtractor().Extract(context.Background(),
		crawlResultWith("Contact. About. Products. Home. Menu."))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for category, entries := range extraction.Categories {
		if len(entries) != 0 {
			t.Errorf("expected no entries for %s, got %v", category, entries)
		}
	}
}

func TestAssessQualityFullCoverage(t *testing.T) {
	content := crawlResultWith(strings.Repeat("long enough content block. ", 30))
	categories := map[string][]string{
		domain.KBCategoryOverview: {"a"},
		domain.KBCategoryContact:  {"b"},
		domain.KBCategoryProducts: {"c"},
	}

	score, issues := AssessQuality(content, categories)
	if score != 1.0 {
		t.Errorf("expected score 1.0, got %v", score)
	}
	if len(issues) != 0 {
		t.Errorf("expected no issues, got %v", issues)
	}
}

func TestAssessQualityPenalties(t *testing.T) {
	content := crawlResultWith("short")
	content.Fallback = true
	categories := map[string][]string{
		domain.KBCategoryOverview: {"a"},
		domain.KBCategoryContact:  {},
		domain.KBCategoryProducts: {},
	}

	score, issues := AssessQuality(content, categories)

	// 1/3 заполнено, штраф за объём (x0.5) и за fallback (x0.6)
	want := (1.0 / 3.0) * 0.5 * 0.6
	if diff := score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected score %v, got %v", want, score)
	}
	if len(issues) != 4 {
		t.Errorf("expected 4 issues, got %v", issues)
	}
}
