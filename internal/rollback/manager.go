package rollback

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/telemetry"
)

// StrategyType — вид стратегии отката.
type StrategyType string

const (
	// NoRollbackNeeded — откат нецелесообразен: ранний сбой без
	// ресурсов или прогресс достаточен, чтобы откат был вреден.
	NoRollbackNeeded StrategyType = "no_rollback_needed"

	// MinimalRollback — откатываются только ресурсы упавшего
	// раннего этапа.
	MinimalRollback StrategyType = "minimal_rollback"

	// SelectiveRollback — откатываются ресурсы упавшего этапа
	// с сохранением названных типов (ядро агента остаётся).
	SelectiveRollback StrategyType = "selective_rollback"

	// FullRollback — откатывается всё. Применяется при падении
	// этапа создания агента.
	FullRollback StrategyType = "full_rollback"
)

// ErrorKind — вид ошибки, приведшей к возможному откату.
type ErrorKind string

const (
	// KindCriticalFailure — падение критического этапа.
	KindCriticalFailure ErrorKind = "critical_failure"

	// KindTimeout — исчерпание бюджета времени.
	KindTimeout ErrorKind = "timeout"

	// KindPartialSuccess — часть этапов упала, критические прошли.
	KindPartialSuccess ErrorKind = "partial_success"

	// KindErrorRecovered — выполнение прервано ошибкой после
	// завершения критических этапов.
	KindErrorRecovered ErrorKind = "error_recovered"
)

// isSoft возвращает true для видов ошибок, при которых откат
// подавляется, если есть существенные результаты.
func (k ErrorKind) isSoft() bool {
	switch k {
	case KindTimeout, KindPartialSuccess, KindErrorRecovered:
		return true
	default:
		return false
	}
}

// Strategy — решение об откате для конкретного запуска.
type Strategy struct {
	// Type — вид стратегии.
	Type StrategyType

	// ShouldRollback — выполнять ли компенсацию.
	ShouldRollback bool

	// PreserveTypes — типы ресурсов, которые не трогаем
	// (selective_rollback).
	PreserveTypes []domain.ResourceType

	// RollbackStages — этапы, чьи ресурсы компенсируются.
	// Пусто — компенсируются все.
	RollbackStages []string

	// PerResourceTimeout — таймаут компенсации одного ресурса.
	PerResourceTimeout time.Duration

	// Reason — человекочитаемое объяснение решения.
	Reason string
}

// preserves проверяет, входит ли тип в preserve-список.
func (s Strategy) preserves(t domain.ResourceType) bool {
	for _, p := range s.PreserveTypes {
		if p == t {
			return true
		}
	}
	return false
}

// coversStage проверяет, компенсируются ли ресурсы этапа.
func (s Strategy) coversStage(stage string) bool {
	if len(s.RollbackStages) == 0 {
		return true
	}
	for _, st := range s.RollbackStages {
		if st == stage {
			return true
		}
	}
	return false
}

// Policy — настраиваемые пороги эвристики "существенных результатов".
//
// Пороги не являются законом: значения по умолчанию повторяют
// исходную систему и подлежат продуктовой калибровке.
type Policy struct {
	// MinPopulatedCategories — сколько непустых категорий базы
	// знаний считается существенным результатом.
	MinPopulatedCategories int

	// MinCompletedStages — сколько завершённых этапов считается
	// существенным результатом.
	MinCompletedStages int
}

// DefaultPolicy возвращает пороги по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		MinPopulatedCategories: 1,
		MinCompletedStages:     3,
	}
}

// Manager — менеджер компенсации.
//
// Manager читает State пайплайна, но никогда его не мутирует:
// итоги компенсации живут в собственном Report.
type Manager struct {
	compensators Registry
	history      HistoryRecorder
	policy       Policy
	budget       time.Duration
	logger       *slog.Logger
}

// Config — параметры создания Manager.
type Config struct {
	// Compensators — реестр компенсаторов по типам ресурсов.
	Compensators Registry

	// History — приёмник истории откатов. Nil допустим.
	History HistoryRecorder

	// Policy — пороги эвристики существенных результатов.
	Policy Policy

	// TotalBudget — общий бюджет пайплайна; используется для
	// выбора per-resource таймаута. По умолчанию 180s.
	TotalBudget time.Duration

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// NewManager создаёт Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Compensators == nil {
		cfg.Compensators = make(Registry)
	}
	if cfg.Policy.MinCompletedStages == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.TotalBudget == 0 {
		cfg.TotalBudget = 180 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		compensators: cfg.Compensators,
		history:      cfg.History,
		policy:       cfg.Policy,
		budget:       cfg.TotalBudget,
		logger:       cfg.Logger,
	}
}

// HasEssentialResults применяет эвристику существенных результатов:
// агент создан, ИЛИ база знаний заполнена, ИЛИ завершено достаточно
// этапов.
func (m *Manager) HasEssentialResults(st *pipeline.State) bool {
	for _, res := range st.Resources() {
		if res.Type == domain.ResourceVoiceAgent && res.ID != "" {
			return true
		}
	}

	if result := st.StageResultFor(pipeline.StageKnowledgeBase); result != nil && result.Status == domain.StageCompleted {
		if populated, ok := result.Data["populated_categories"].(int); ok && populated >= m.policy.MinPopulatedCategories {
			return true
		}
	}

	return len(st.CompletedStages()) >= m.policy.MinCompletedStages
}

// DetermineStrategy выбирает стратегию отката по последнему упавшему
// этапу и наличию существенных результатов.
func (m *Manager) DetermineStrategy(st *pipeline.State) Strategy {
	timeout := m.perResourceTimeout(st)
	lastFailed := st.LastFailedStage()

	if lastFailed == "" {
		return Strategy{
			Type:               NoRollbackNeeded,
			PerResourceTimeout: timeout,
			Reason:             "no failed stages",
		}
	}

	// Падение этапа создания агента обесценивает всё созданное.
	if lastFailed == pipeline.StageAgentCreation {
		return Strategy{
			Type:               FullRollback,
			ShouldRollback:     true,
			PerResourceTimeout: timeout,
			Reason:             "agent creation failed, nothing downstream is valid",
		}
	}

	// Ранние этапы: при существенных результатах (fallback-контент
	// дошёл до создания агента) откат вреден.
	if lastFailed == pipeline.StageWebCrawling || lastFailed == pipeline.StageContentExtraction {
		if m.HasEssentialResults(st) {
			return Strategy{
				Type:               NoRollbackNeeded,
				PerResourceTimeout: timeout,
				Reason:             "early stage failed but essential results exist",
			}
		}
		return Strategy{
			Type:               MinimalRollback,
			ShouldRollback:     true,
			RollbackStages:     []string{lastFailed},
			PerResourceTimeout: timeout,
			Reason:             "early stage failed without usable results",
		}
	}

	return Strategy{
		Type:           SelectiveRollback,
		ShouldRollback: true,
		RollbackStages: []string{lastFailed},
		PreserveTypes: []domain.ResourceType{
			domain.ResourceVoiceAgent,
			domain.ResourceAgentRecord,
		},
		PerResourceTimeout: timeout,
		Reason:             "non-critical stage failed, preserving the agent core",
	}
}

// perResourceTimeout выбирает таймаут компенсации одного ресурса
// по остатку общего бюджета.
func (m *Manager) perResourceTimeout(st *pipeline.State) time.Duration {
	remaining := st.TimeRemaining(m.budget)
	switch {
	case remaining > 60*time.Second:
		return 30 * time.Second
	case remaining > 30*time.Second:
		return 15 * time.Second
	default:
		return 10 * time.Second
	}
}

// ShouldTrigger решает, выполнять ли компенсацию.
//
// Падение критического этапа всегда приводит к откату. Мягкие виды
// ошибок (timeout, partial_success, error_recovered) не откатываются
// при существенных результатах.
func (m *Manager) ShouldTrigger(st *pipeline.State, kind ErrorKind) bool {
	if kind == KindCriticalFailure {
		return st.ResourceCount() > 0
	}

	strategy := m.DetermineStrategy(st)
	if !strategy.ShouldRollback {
		return false
	}
	if st.ResourceCount() == 0 {
		return false
	}
	if kind.isSoft() && m.HasEssentialResults(st) {
		return false
	}
	return true
}

// Rollback выполняет проход компенсации по State.
//
// Ресурсы обходятся по убыванию приоритета; каждая компенсация
// изолирована — одно падение не останавливает остальные.
func (m *Manager) Rollback(ctx context.Context, st *pipeline.State) *Report {
	logger := telemetry.WithPipelineID(m.logger, st.ID.String())

	report := &Report{
		PipelineID: st.ID,
		TenantID:   st.Request.TenantID,
		StartedAt:  time.Now(),
	}

	resources := st.ResourcesForRollback()
	if len(resources) == 0 {
		report.Status = ReportNoResources
		report.FinishedAt = time.Now()
		m.recordHistory(ctx, st, report, 0)
		return report
	}

	strategy := m.DetermineStrategy(st)
	report.Strategy = strategy.Type
	logger.Info("starting rollback",
		"strategy", strategy.Type,
		"reason", strategy.Reason,
		"resources", len(resources))

	for _, res := range resources {
		if strategy.preserves(res.Type) {
			logger.Info("preserving resource", "resource_type", res.Type, "resource_id", res.ID)
			report.Skipped = append(report.Skipped, res.ID)
			telemetry.RollbackResourcesTotal.WithLabelValues(string(res.Type), "skipped").Inc()
			continue
		}
		if !strategy.coversStage(res.Stage) {
			report.Skipped = append(report.Skipped, res.ID)
			telemetry.RollbackResourcesTotal.WithLabelValues(string(res.Type), "skipped").Inc()
			continue
		}

		comp, ok := m.compensators.Lookup(res.Type)
		if !ok {
			// Диспетчеризация тотальна: неизвестный тип не
			// прерывает компенсацию остальных ресурсов.
			logger.Warn("no compensator registered, skipping",
				"resource_type", res.Type, "resource_id", res.ID)
			report.Skipped = append(report.Skipped, res.ID)
			telemetry.RollbackResourcesTotal.WithLabelValues(string(res.Type), "no_handler").Inc()
			continue
		}

		m.compensateOne(ctx, comp, res, strategy.PerResourceTimeout, report, logger)
	}

	report.Status = aggregateStatus(report)
	report.FinishedAt = time.Now()

	telemetry.RollbacksTotal.WithLabelValues(string(report.Status)).Inc()
	logger.Info("rollback finished",
		"status", report.Status,
		"rolled_back", len(report.RolledBack),
		"failures", len(report.Failures),
		"skipped", len(report.Skipped))

	m.recordHistory(ctx, st, report, len(resources))
	return report
}

// compensateOne выполняет одну изолированную компенсацию
// под собственным таймаутом.
func (m *Manager) compensateOne(ctx context.Context, comp Compensator, res domain.Resource, timeout time.Duration, report *Report, logger *slog.Logger) {
	resCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := comp.Compensate(resCtx, res); err != nil {
		logger.Error("compensation failed",
			"resource_type", res.Type, "resource_id", res.ID, "error", err)
		report.Failures = append(report.Failures, Failure{
			ResourceID: res.ID,
			Type:       res.Type,
			Detail:     err.Error(),
			Data:       res.Data,
		})
		telemetry.RollbackResourcesTotal.WithLabelValues(string(res.Type), "failed").Inc()
		return
	}

	logger.Info("resource compensated", "resource_type", res.Type, "resource_id", res.ID)
	report.RolledBack = append(report.RolledBack, res.ID)
	telemetry.RollbackResourcesTotal.WithLabelValues(string(res.Type), "success").Inc()
}

// aggregateStatus сводит итог прохода по счётчикам отчёта.
func aggregateStatus(report *Report) ReportStatus {
	switch {
	case len(report.RolledBack) == 0 && len(report.Failures) == 0:
		return ReportNoResources
	case len(report.Failures) == 0:
		return ReportSuccess
	case len(report.RolledBack) == 0:
		return ReportFailed
	default:
		return ReportPartialSuccess
	}
}

// recordHistory добавляет запись в историю откатов.
func (m *Manager) recordHistory(ctx context.Context, st *pipeline.State, report *Report, resourceCount int) {
	if m.history == nil {
		return
	}

	entry := &HistoryEntry{
		ID:            uuid.New(),
		PipelineID:    st.ID,
		TenantID:      st.Request.TenantID,
		Strategy:      report.Strategy,
		Status:        report.Status,
		ResourceCount: resourceCount,
		RolledBack:    len(report.RolledBack),
		FailedCount:   len(report.Failures),
		Failures:      report.Failures,
		CreatedAt:     time.Now(),
	}

	if err := m.history.Append(ctx, entry); err != nil {
		m.logger.Error("failed to record rollback history",
			"pipeline_id", st.ID, "error", err)
	}
}
