package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/cache"
	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/services"
	"github.com/shaiso/voxline/internal/telemetry"
)

// AgentStore — персистентность записей агентов.
type AgentStore interface {
	Create(ctx context.Context, agent *domain.Agent) error
	Update(ctx context.Context, agent *domain.Agent) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Stages — исполнители шести этапов пайплайна.
//
// Ресурсы регистрируются в State сразу после создания у внешнего
// провайдера, а не через результат этапа: если этап упадёт позже,
// уже созданный ресурс всё равно должен попасть под компенсацию.
type Stages struct {
	crawler   services.Crawler
	llm       services.Extractor
	rules     services.Extractor
	directory services.AgentDirectory
	phones    services.PhoneProvider
	cache     cache.ContentCache
	agents    AgentStore

	webhookBase string
	maxPages    int
	logger      *slog.Logger
}

// StagesConfig — зависимости исполнителей этапов.
//
// Directory и Phones обязательны; остальные зависимости опциональны
// и при отсутствии отключают соответствующую функциональность
// (кэш контента, LLM-извлечение, персистентность агентов).
type StagesConfig struct {
	Crawler   services.Crawler
	LLM       services.Extractor
	Directory services.AgentDirectory
	Phones    services.PhoneProvider
	Cache     cache.ContentCache
	Agents    AgentStore

	// WebhookBaseURL — публичный адрес API для регистрации webhook'ов.
	WebhookBaseURL string

	// MaxPages — максимум страниц за обход сайта. По умолчанию 5.
	MaxPages int

	Logger *slog.Logger
}

// NewStages создаёт исполнителей этапов.
func NewStages(cfg StagesConfig) *Stages {
	if cfg.Crawler == nil {
		cfg.Crawler = services.NewHTTPCrawler(cfg.Logger)
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.WebhookBaseURL == "" {
		cfg.WebhookBaseURL = "http://localhost:8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Stages{
		crawler:     cfg.Crawler,
		llm:         cfg.LLM,
		rules:       services.NewKeywordExtractor(),
		directory:   cfg.Directory,
		phones:      cfg.Phones,
		cache:       cfg.Cache,
		agents:      cfg.Agents,
		webhookBase: cfg.WebhookBaseURL,
		maxPages:    cfg.MaxPages,
		logger:      cfg.Logger,
	}
}

// Executor возвращает диспетчер этапов для координатора.
func (s *Stages) Executor() pipeline.StageExecutor {
	return func(ctx context.Context, st *pipeline.State, stage string, strat pipeline.Strategy) (*pipeline.StageOutcome, error) {
		switch stage {
		case pipeline.StageWebCrawling:
			return s.crawlSite(ctx, st, strat)
		case pipeline.StageContentExtraction:
			return s.extractContent(ctx, st, strat)
		case pipeline.StageKnowledgeBase:
			return s.buildKnowledgeBase(ctx, st)
		case pipeline.StageAgentCreation:
			return s.createAgent(ctx, st)
		case pipeline.StagePhoneProvisioning:
			return s.provisionPhone(ctx, st)
		case pipeline.StageFinalIntegration:
			return s.finalIntegration(ctx, st, strat)
		default:
			return nil, fmt.Errorf("no executor for stage %q", stage)
		}
	}
}

// crawlSite — этап web_crawling.
//
// Порядок попыток: кэш контента, живой обход, fallback из домена.
// Этап не падает никогда: fallback-контент всегда доступен.
func (s *Stages) crawlSite(ctx context.Context, st *pipeline.State, strat pipeline.Strategy) (*pipeline.StageOutcome, error) {
	siteURL := st.Request.WebsiteURL

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, siteURL)
		switch {
		case err == nil:
			telemetry.ContentCacheHits.WithLabelValues("hit").Inc()
			cached.FromCache = true
			return crawlOutcome(cached), nil
		case errors.Is(err, cache.ErrMiss):
			telemetry.ContentCacheHits.WithLabelValues("miss").Inc()
		default:
			s.logger.Warn("content cache lookup failed", "url", siteURL, "error", err)
		}
	}

	if strat.UseFallbacks {
		// Бюджет поджимает: обход сети не начинаем.
		return crawlOutcome(FallbackContent(siteURL, st.Request.AgentName)), nil
	}

	result, err := s.crawler.Crawl(ctx, siteURL, s.maxPages)
	if err != nil || result == nil || len(result.Pages) == 0 {
		if err != nil {
			s.logger.Warn("crawl failed, using fallback content", "url", siteURL, "error", err)
		}
		return crawlOutcome(FallbackContent(siteURL, st.Request.AgentName)), nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, siteURL, result); err != nil {
			s.logger.Warn("content cache store failed", "url", siteURL, "error", err)
		}
	}

	return crawlOutcome(result), nil
}

func crawlOutcome(result *services.CrawlResult) *pipeline.StageOutcome {
	return &pipeline.StageOutcome{
		Status: pipeline.OutcomeSuccess,
		Payload: map[string]any{
			"crawl_result": result,
			"pages":        len(result.Pages),
			"total_chars":  result.TotalText(),
			"from_cache":   result.FromCache,
			"fallback":     result.Fallback,
		},
	}
}

// extractContent — этап content_extraction.
//
// LLM-извлечение — первый выбор; при его отсутствии, ошибке или
// стратегии с fallback'ами работает rule-based извлечение.
func (s *Stages) extractContent(ctx context.Context, st *pipeline.State, strat pipeline.Strategy) (*pipeline.StageOutcome, error) {
	data := completedData(st, pipeline.StageWebCrawling)
	content, _ := data["crawl_result"].(*services.CrawlResult)
	if content == nil {
		return nil, errors.New("no crawled content available")
	}

	var extraction *services.Extraction
	if s.llm != nil && !strat.UseFallbacks {
		ex, err := s.llm.Extract(ctx, content)
		if err != nil {
			s.logger.Warn("llm extraction failed, falling back to rules", "error", err)
		} else {
			extraction = ex
		}
	}

	if extraction == nil {
		ex, err := s.rules.Extract(ctx, content)
		if err != nil {
			return nil, fmt.Errorf("rule-based extraction: %w", err)
		}
		extraction = ex
	}

	return &pipeline.StageOutcome{
		Status: pipeline.OutcomeSuccess,
		Payload: map[string]any{
			"extraction":    extraction,
			"method":        extraction.Method,
			"quality_score": extraction.QualityScore,
			"description":   extraction.Description,
		},
	}, nil
}

// buildKnowledgeBase — этап knowledge_base_creation.
//
// Стандартные категории присутствуют всегда, даже пустыми: внешний
// провайдер агентов ожидает фиксированную структуру базы.
func (s *Stages) buildKnowledgeBase(ctx context.Context, st *pipeline.State) (*pipeline.StageOutcome, error) {
	data := completedData(st, pipeline.StageContentExtraction)
	extraction, _ := data["extraction"].(*services.Extraction)
	if extraction == nil {
		return nil, errors.New("no extraction available")
	}

	kb := make(domain.KnowledgeBase, len(extraction.Categories))
	for category, entries := range extraction.Categories {
		kb[category] = entries
	}
	for _, category := range []string{domain.KBCategoryOverview, domain.KBCategoryContact, domain.KBCategoryProducts} {
		if _, ok := kb[category]; !ok {
			kb[category] = []string{}
		}
	}

	description := extraction.Description
	if description == "" {
		description = st.Request.Description
	}

	st.AddResource(domain.Resource{
		Type:  domain.ResourceKnowledgeBase,
		ID:    st.ID.String(),
		Stage: pipeline.StageKnowledgeBase,
		Data:  map[string]any{"website_url": st.Request.WebsiteURL},
	})

	return &pipeline.StageOutcome{
		Status: pipeline.OutcomeSuccess,
		Payload: map[string]any{
			"knowledge_base":       kb,
			"populated_categories": kb.PopulatedCategories(),
			"description":          description,
			"quality_score":        extraction.QualityScore,
			"extraction_method":    extraction.Method,
		},
	}, nil
}

// createAgent — этап agent_creation.
func (s *Stages) createAgent(ctx context.Context, st *pipeline.State) (*pipeline.StageOutcome, error) {
	data := completedData(st, pipeline.StageKnowledgeBase)
	kb, _ := data["knowledge_base"].(domain.KnowledgeBase)
	if kb == nil {
		return nil, errors.New("no knowledge base available")
	}
	description, _ := data["description"].(string)

	externalID, err := s.directory.CreateAgent(ctx, services.AgentParams{
		Name:          st.Request.AgentName,
		Description:   description,
		Language:      st.Request.Language,
		VoiceID:       st.Request.VoiceID,
		KnowledgeBase: kb,
	})
	if err != nil {
		return nil, fmt.Errorf("create voice agent: %w", err)
	}

	// Агент создан у провайдера — ресурс регистрируется немедленно,
	// до любых последующих шагов, которые могут упасть.
	st.AddResource(domain.Resource{
		Type:  domain.ResourceVoiceAgent,
		ID:    externalID,
		Stage: pipeline.StageAgentCreation,
	})

	payload := map[string]any{"external_id": externalID}

	if s.agents != nil {
		now := time.Now()
		agent := &domain.Agent{
			ID:            uuid.New(),
			TenantID:      st.Request.TenantID,
			Name:          st.Request.AgentName,
			Description:   description,
			ExternalID:    externalID,
			WebsiteURL:    st.Request.WebsiteURL,
			Language:      st.Request.Language,
			VoiceID:       st.Request.VoiceID,
			KnowledgeBase: kb,
			PipelineID:    st.ID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.agents.Create(ctx, agent); err != nil {
			return nil, fmt.Errorf("persist agent record: %w", err)
		}

		st.AddResource(domain.Resource{
			Type:  domain.ResourceAgentRecord,
			ID:    agent.ID.String(),
			Stage: pipeline.StageAgentCreation,
		})
		payload["agent_id"] = agent.ID.String()
	}

	return &pipeline.StageOutcome{Status: pipeline.OutcomeSuccess, Payload: payload}, nil
}

// provisionPhone — этап phone_provisioning.
func (s *Stages) provisionPhone(ctx context.Context, st *pipeline.State) (*pipeline.StageOutcome, error) {
	prefs := st.Request.PhonePreferences

	candidates, err := s.phones.SearchNumbers(ctx, prefs, 10)
	if err != nil {
		return nil, fmt.Errorf("search phone numbers: %w", err)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no phone numbers available")
	}

	best := PickNumber(candidates, prefs)
	resourceID, err := s.phones.Provision(ctx, best.Number)
	if err != nil {
		return nil, fmt.Errorf("provision phone number %s: %w", best.Number, err)
	}

	st.AddResource(domain.Resource{
		Type:  domain.ResourcePhoneNumber,
		ID:    resourceID,
		Stage: pipeline.StagePhoneProvisioning,
		Data:  map[string]any{"number": best.Number},
	})

	return &pipeline.StageOutcome{
		Status: pipeline.OutcomeSuccess,
		Payload: map[string]any{
			"phone_number":      best.Number,
			"phone_resource_id": resourceID,
			"candidates":        len(candidates),
		},
	}, nil
}

// finalIntegration — этап final_integration: привязка номера,
// регистрация webhook'а, дополнение записи агента.
func (s *Stages) finalIntegration(ctx context.Context, st *pipeline.State, strat pipeline.Strategy) (*pipeline.StageOutcome, error) {
	agentData := completedData(st, pipeline.StageAgentCreation)
	externalID, _ := agentData["external_id"].(string)
	if externalID == "" {
		return nil, errors.New("no voice agent available")
	}

	phoneData := completedData(st, pipeline.StagePhoneProvisioning)
	number, _ := phoneData["phone_number"].(string)
	if number == "" {
		return nil, errors.New("no phone number available")
	}

	if err := s.directory.AttachPhoneNumber(ctx, externalID, number); err != nil {
		return nil, fmt.Errorf("attach phone number: %w", err)
	}

	payload := map[string]any{"attached_number": number}

	webhookURL := fmt.Sprintf("%s/webhooks/calls/%s", strings.TrimRight(s.webhookBase, "/"), externalID)
	webhookID, err := s.directory.RegisterWebhook(ctx, externalID, webhookURL)
	if err != nil {
		// Под давлением времени агент без webhook'а лучше, чем откат.
		if !strat.UseFallbacks {
			return nil, fmt.Errorf("register webhook: %w", err)
		}
		s.logger.Warn("webhook registration failed, continuing without webhook", "error", err)
	} else {
		st.AddResource(domain.Resource{
			Type:  domain.ResourceWebhook,
			ID:    webhookID,
			Stage: pipeline.StageFinalIntegration,
		})
		payload["webhook_id"] = webhookID
	}

	s.updateAgentRecord(ctx, st, externalID, number)

	return &pipeline.StageOutcome{Status: pipeline.OutcomeSuccess, Payload: payload}, nil
}

// updateAgentRecord дополняет запись агента итогами интеграции.
// Ошибка записи не валит этап: агент уже работает.
func (s *Stages) updateAgentRecord(ctx context.Context, st *pipeline.State, externalID, number string) {
	if s.agents == nil {
		return
	}

	agentData := completedData(st, pipeline.StageAgentCreation)
	agentIDStr, _ := agentData["agent_id"].(string)
	agentID, err := uuid.Parse(agentIDStr)
	if err != nil {
		return
	}

	kbData := completedData(st, pipeline.StageKnowledgeBase)
	kb, _ := kbData["knowledge_base"].(domain.KnowledgeBase)
	description, _ := kbData["description"].(string)

	agent := &domain.Agent{
		ID:            agentID,
		Description:   description,
		ExternalID:    externalID,
		PhoneNumber:   number,
		KnowledgeBase: kb,
		UpdatedAt:     time.Now(),
	}
	if err := s.agents.Update(ctx, agent); err != nil {
		s.logger.Warn("agent record update failed", "agent_id", agentID, "error", err)
	}
}

// completedData возвращает payload успешно завершённого этапа, или nil.
func completedData(st *pipeline.State, stage string) map[string]any {
	result := st.StageResultFor(stage)
	if result == nil || result.Status != domain.StageCompleted {
		return nil
	}
	return result.Data
}
