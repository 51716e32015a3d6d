package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/cache"
	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/services"
)

// sampleSiteText — текст с опорными словами всех трёх категорий.
const sampleSiteText = "Acme is a company founded in 2010 with a mission to help customers. " +
	"Contact us by phone or email at our address in Springfield. " +
	"Our products and services include pricing plans for every business."

// fakeCrawler — управляемый обходчик для тестов.
type fakeCrawler struct {
	result *services.CrawlResult
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeCrawler) Crawl(ctx context.Context, url string, maxPages int) (*services.CrawlResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &services.CrawlResult{
		URL:       url,
		Pages:     []services.Page{{URL: url, Title: "Acme", Text: sampleSiteText}},
		CrawledAt: time.Now(),
	}, nil
}

func (f *fakeCrawler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeDirectory — управляемый голосовой провайдер.
type fakeDirectory struct {
	mu sync.Mutex

	failCreate  bool
	failAttach  bool
	failWebhook bool

	seq             int
	created         []string
	deleted         []string
	attached        map[string]string
	webhooks        []string
	deletedWebhooks []string
}

func (f *fakeDirectory) CreateAgent(ctx context.Context, params services.AgentParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return "", errors.New("provider rejected agent")
	}
	f.seq++
	id := fmt.Sprintf("ext-%d", f.seq)
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeDirectory) DeleteAgent(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return nil
}

func (f *fakeDirectory) AttachPhoneNumber(ctx context.Context, externalID, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failAttach {
		return errors.New("attach rejected")
	}
	if f.attached == nil {
		f.attached = make(map[string]string)
	}
	f.attached[externalID] = number
	return nil
}

func (f *fakeDirectory) RegisterWebhook(ctx context.Context, externalID, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWebhook {
		return "", errors.New("webhook rejected")
	}
	f.seq++
	id := fmt.Sprintf("hook-%d", f.seq)
	f.webhooks = append(f.webhooks, id)
	return id, nil
}

func (f *fakeDirectory) DeleteWebhook(ctx context.Context, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedWebhooks = append(f.deletedWebhooks, webhookID)
	return nil
}

// fakePhones — управляемый телефонный провайдер.
type fakePhones struct {
	mu sync.Mutex

	candidates    []services.PhoneCandidate
	failSearch    bool
	failProvision bool

	provisioned []string
	released    []string
}

func (f *fakePhones) SearchNumbers(ctx context.Context, prefs domain.PhonePreferences, limit int) ([]services.PhoneCandidate, error) {
	if f.failSearch {
		return nil, errors.New("search unavailable")
	}
	if f.candidates != nil {
		return f.candidates, nil
	}
	return []services.PhoneCandidate{
		{Number: "+14155550100"},
		{Number: "+12125551234"},
	}, nil
}

func (f *fakePhones) Provision(ctx context.Context, number string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failProvision {
		return "", errors.New("provision rejected")
	}
	id := "pn-" + number
	f.provisioned = append(f.provisioned, id)
	return id, nil
}

func (f *fakePhones) Release(ctx context.Context, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, resourceID)
	return nil
}

// fakeAgents — in-memory AgentStore.
type fakeAgents struct {
	mu sync.Mutex

	failCreate bool

	stored  map[uuid.UUID]*domain.Agent
	updated []*domain.Agent
	removed []uuid.UUID
}

func (f *fakeAgents) Create(ctx context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate {
		return errors.New("insert failed")
	}
	if f.stored == nil {
		f.stored = make(map[uuid.UUID]*domain.Agent)
	}
	cp := *agent
	f.stored[agent.ID] = &cp
	return nil
}

func (f *fakeAgents) Update(ctx context.Context, agent *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *agent
	f.updated = append(f.updated, &cp)
	return nil
}

func (f *fakeAgents) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.stored, id)
	f.removed = append(f.removed, id)
	return nil
}

func testRequest() domain.ProvisionRequest {
	req := domain.ProvisionRequest{
		TenantID:   "tenant-1",
		AgentName:  "Support Bot",
		WebsiteURL: "https://acme.com",
	}
	req.Normalize()
	return req
}

// completeCrawlStage записывает в State успешный этап обхода.
func completeCrawlStage(st *pipeline.State, content *services.CrawlResult) {
	st.StartStage(pipeline.StageWebCrawling)
	st.CompleteStage(pipeline.StageWebCrawling, map[string]any{"crawl_result": content})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCrawlStageCacheHit(t *testing.T) {
	contentCache := cache.NewMemoryCache(time.Minute)
	cached := &services.CrawlResult{
		URL:   "https://acme.com",
		Pages: []services.Page{{URL: "https://acme.com", Text: sampleSiteText}},
	}
	if err := contentCache.Set(context.Background(), "https://acme.com", cached); err != nil {
		t.Fatalf("Set: %v", err)
	}

	crawler := &fakeCrawler{}
	stages := NewStages(StagesConfig{
		Crawler: crawler,
		Cache:   contentCache,
		Logger:  quietLogger(),
	})

	st := pipeline.NewState(testRequest())
	outcome, err := stages.Executor()(context.Background(), st, pipeline.StageWebCrawling, pipeline.Strategy{})
	if err != nil {
		t.Fatalf("crawl stage: %v", err)
	}

	if fromCache, _ := outcome.Payload["from_cache"].(bool); !fromCache {
		t.Error("ожидался результат из кэша")
	}
	if crawler.callCount() != 0 {
		t.Errorf("обходчик вызван %d раз при попадании в кэш", crawler.callCount())
	}
}

func TestCrawlStageFallbackOnError(t *testing.T) {
	crawler := &fakeCrawler{err: errors.New("connection refused")}
	stages := NewStages(StagesConfig{Crawler: crawler, Logger: quietLogger()})

	st := pipeline.NewState(testRequest())
	outcome, err := stages.Executor()(context.Background(), st, pipeline.StageWebCrawling, pipeline.Strategy{})
	if err != nil {
		t.Fatalf("этап обхода не должен падать: %v", err)
	}

	if fallback, _ := outcome.Payload["fallback"].(bool); !fallback {
		t.Error("при ошибке обхода ожидался fallback-контент")
	}
}

func TestCrawlStageSkipsNetworkUnderFallbacks(t *testing.T) {
	crawler := &fakeCrawler{}
	stages := NewStages(StagesConfig{Crawler: crawler, Logger: quietLogger()})

	st := pipeline.NewState(testRequest())
	strat := pipeline.Strategy{UseFallbacks: true}
	outcome, err := stages.Executor()(context.Background(), st, pipeline.StageWebCrawling, strat)
	if err != nil {
		t.Fatalf("crawl stage: %v", err)
	}

	if crawler.callCount() != 0 {
		t.Error("под давлением времени обход сети не должен начинаться")
	}
	if fallback, _ := outcome.Payload["fallback"].(bool); !fallback {
		t.Error("ожидался fallback-контент")
	}
}

func TestCrawlStageCachesLiveResult(t *testing.T) {
	contentCache := cache.NewMemoryCache(time.Minute)
	stages := NewStages(StagesConfig{
		Crawler: &fakeCrawler{},
		Cache:   contentCache,
		Logger:  quietLogger(),
	})

	st := pipeline.NewState(testRequest())
	if _, err := stages.Executor()(context.Background(), st, pipeline.StageWebCrawling, pipeline.Strategy{}); err != nil {
		t.Fatalf("crawl stage: %v", err)
	}

	if _, err := contentCache.Get(context.Background(), "https://acme.com"); err != nil {
		t.Errorf("живой обход должен пополнять кэш: %v", err)
	}
}

func TestKnowledgeBaseStandardCategories(t *testing.T) {
	stages := NewStages(StagesConfig{
		Crawler: &fakeCrawler{},
		Logger:  quietLogger(),
	})
	exec := stages.Executor()

	st := pipeline.NewState(testRequest())
	// Извлечение без контактной категории
	extraction := &services.Extraction{
		Categories: map[string][]string{
			domain.KBCategoryOverview: {"Acme is a company"},
			domain.KBCategoryProducts: {"Plans start at $10"},
		},
		Description: "Acme does things",
		Method:      "rules",
	}
	st.StartStage(pipeline.StageContentExtraction)
	st.CompleteStage(pipeline.StageContentExtraction, map[string]any{"extraction": extraction})

	outcome, err := exec(context.Background(), st, pipeline.StageKnowledgeBase, pipeline.Strategy{})
	if err != nil {
		t.Fatalf("kb stage: %v", err)
	}

	kb, _ := outcome.Payload["knowledge_base"].(domain.KnowledgeBase)
	if kb == nil {
		t.Fatal("payload не содержит knowledge_base")
	}
	for _, category := range []string{domain.KBCategoryOverview, domain.KBCategoryContact, domain.KBCategoryProducts} {
		if _, ok := kb[category]; !ok {
			t.Errorf("стандартная категория %s отсутствует", category)
		}
	}

	if populated, _ := outcome.Payload["populated_categories"].(int); populated != 2 {
		t.Errorf("populated_categories = %v, ожидалось 2", outcome.Payload["populated_categories"])
	}

	// Этап регистрирует ресурс базы знаний
	resources := st.Resources()
	if len(resources) != 1 || resources[0].Type != domain.ResourceKnowledgeBase {
		t.Errorf("ожидался один ресурс knowledge_base, получено %v", resources)
	}
}

func TestAgentStageRegistersResourceBeforePersistFailure(t *testing.T) {
	// Внешний агент создан, но запись в БД упала: ресурс voice_agent
	// обязан попасть в State до ошибки, иначе он осиротеет.
	dir := &fakeDirectory{}
	agents := &fakeAgents{failCreate: true}
	stages := NewStages(StagesConfig{
		Crawler:   &fakeCrawler{},
		Directory: dir,
		Agents:    agents,
		Logger:    quietLogger(),
	})

	st := pipeline.NewState(testRequest())
	st.StartStage(pipeline.StageKnowledgeBase)
	st.CompleteStage(pipeline.StageKnowledgeBase, map[string]any{
		"knowledge_base": domain.KnowledgeBase{domain.KBCategoryOverview: {"Acme"}},
		"description":    "Acme",
	})

	_, err := stages.Executor()(context.Background(), st, pipeline.StageAgentCreation, pipeline.Strategy{})
	if err == nil {
		t.Fatal("ожидалась ошибка персистентности")
	}

	found := false
	for _, res := range st.Resources() {
		if res.Type == domain.ResourceVoiceAgent && res.ID == "ext-1" {
			found = true
		}
	}
	if !found {
		t.Error("ресурс voice_agent не зарегистрирован до ошибки записи")
	}
}

func TestFinalIntegrationAttachesAndRegisters(t *testing.T) {
	dir := &fakeDirectory{}
	agents := &fakeAgents{}
	stages := NewStages(StagesConfig{
		Crawler:        &fakeCrawler{},
		Directory:      dir,
		Agents:         agents,
		WebhookBaseURL: "https://api.voxline.dev",
		Logger:         quietLogger(),
	})

	agentID := uuid.New()
	st := pipeline.NewState(testRequest())
	st.StartStage(pipeline.StageKnowledgeBase)
	st.CompleteStage(pipeline.StageKnowledgeBase, map[string]any{
		"knowledge_base": domain.KnowledgeBase{domain.KBCategoryOverview: {"Acme"}},
		"description":    "Acme",
	})
	st.StartStage(pipeline.StageAgentCreation)
	st.CompleteStage(pipeline.StageAgentCreation, map[string]any{
		"external_id": "ext-1",
		"agent_id":    agentID.String(),
	})
	st.StartStage(pipeline.StagePhoneProvisioning)
	st.CompleteStage(pipeline.StagePhoneProvisioning, map[string]any{"phone_number": "+14155550100"})

	outcome, err := stages.Executor()(context.Background(), st, pipeline.StageFinalIntegration, pipeline.Strategy{})
	if err != nil {
		t.Fatalf("final stage: %v", err)
	}

	if dir.attached["ext-1"] != "+14155550100" {
		t.Errorf("номер не привязан: %v", dir.attached)
	}
	if _, ok := outcome.Payload["webhook_id"]; !ok {
		t.Error("payload не содержит webhook_id")
	}

	webhookFound := false
	for _, res := range st.Resources() {
		if res.Type == domain.ResourceWebhook {
			webhookFound = true
		}
	}
	if !webhookFound {
		t.Error("ресурс webhook не зарегистрирован")
	}

	if len(agents.updated) != 1 || agents.updated[0].PhoneNumber != "+14155550100" {
		t.Errorf("запись агента не дополнена номером: %+v", agents.updated)
	}
}

func TestFinalIntegrationWebhookFailure(t *testing.T) {
	prepare := func(dir *fakeDirectory) (*Stages, *pipeline.State) {
		stages := NewStages(StagesConfig{
			Crawler:   &fakeCrawler{},
			Directory: dir,
			Logger:    quietLogger(),
		})
		st := pipeline.NewState(testRequest())
		st.StartStage(pipeline.StageAgentCreation)
		st.CompleteStage(pipeline.StageAgentCreation, map[string]any{"external_id": "ext-1"})
		st.StartStage(pipeline.StagePhoneProvisioning)
		st.CompleteStage(pipeline.StagePhoneProvisioning, map[string]any{"phone_number": "+14155550100"})
		return stages, st
	}

	// Обычный режим: отказ регистрации webhook'а валит этап
	stages, st := prepare(&fakeDirectory{failWebhook: true})
	if _, err := stages.Executor()(context.Background(), st, pipeline.StageFinalIntegration, pipeline.Strategy{}); err == nil {
		t.Error("ожидалась ошибка регистрации webhook")
	}

	// Под fallback-стратегией агент без webhook'а допустим
	stages, st = prepare(&fakeDirectory{failWebhook: true})
	strat := pipeline.Strategy{UseFallbacks: true}
	outcome, err := stages.Executor()(context.Background(), st, pipeline.StageFinalIntegration, strat)
	if err != nil {
		t.Fatalf("final stage под fallback-стратегией: %v", err)
	}
	if _, ok := outcome.Payload["webhook_id"]; ok {
		t.Error("webhook_id не должен появляться при отказе регистрации")
	}
}
