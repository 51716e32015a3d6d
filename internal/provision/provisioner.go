package provision

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/mq"
	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/rollback"
	"github.com/shaiso/voxline/internal/telemetry"
)

// RunStore — персистентность записей запусков.
type RunStore interface {
	Create(ctx context.Context, run *domain.PipelineRun) error
	Finalize(ctx context.Context, run *domain.PipelineRun) error
}

// EventPublisher — публикация событий пайплайна в очередь.
type EventPublisher interface {
	PublishPipelineStarted(ctx context.Context, payload mq.PipelineStartedPayload) error
	PublishStageCompleted(ctx context.Context, payload mq.StageCompletedPayload) error
	PublishPipelineFinished(ctx context.Context, payload mq.PipelineFinishedPayload) error
	PublishPipelineFailed(ctx context.Context, payload mq.PipelineFailedPayload) error
}

// Provisioner — драйвер полного цикла создания агента.
type Provisioner struct {
	coord     *pipeline.Coordinator
	rollbacks *rollback.Manager
	stages    *Stages

	runs   RunStore
	events EventPublisher

	// criticalStages — этапы, падение которых делает запуск FAILED
	// независимо от остального прогресса.
	criticalStages map[string]bool

	// asyncGrace — добавка к бюджету для контекста фонового запуска:
	// время на откат после исчерпания бюджета этапов.
	asyncGrace time.Duration

	// finished — guard финализации: по одному sync.Once на запуск.
	finished sync.Map

	logger *slog.Logger
}

// Config — параметры создания Provisioner.
type Config struct {
	// Coordinator — координатор этапов. Обязателен.
	Coordinator *pipeline.Coordinator

	// Rollbacks — менеджер компенсации. Обязателен.
	Rollbacks *rollback.Manager

	// Stages — исполнители этапов. Обязательны.
	Stages *Stages

	// Runs — персистентность запусков. Nil допустим.
	Runs RunStore

	// Events — публикация событий. Nil допустим.
	Events EventPublisher

	// CriticalStages — этапы, падение которых означает FAILED.
	// По умолчанию agent_creation и final_integration.
	CriticalStages []string

	// AsyncGrace — запас времени на откат в фоновом запуске.
	// По умолчанию 30s.
	AsyncGrace time.Duration

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// New создаёт Provisioner.
func New(cfg Config) *Provisioner {
	if cfg.CriticalStages == nil {
		cfg.CriticalStages = []string{pipeline.StageAgentCreation, pipeline.StageFinalIntegration}
	}
	if cfg.AsyncGrace == 0 {
		cfg.AsyncGrace = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	critical := make(map[string]bool, len(cfg.CriticalStages))
	for _, s := range cfg.CriticalStages {
		critical[s] = true
	}

	return &Provisioner{
		coord:          cfg.Coordinator,
		rollbacks:      cfg.Rollbacks,
		stages:         cfg.Stages,
		runs:           cfg.Runs,
		events:         cfg.Events,
		criticalStages: critical,
		asyncGrace:     cfg.AsyncGrace,
		logger:         cfg.Logger,
	}
}

// Provision выполняет полный цикл создания агента синхронно.
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (*Result, error) {
	st, err := p.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.run(ctx, st), nil
}

// ProvisionAsync регистрирует запуск и выполняет его в фоне.
// Возвращает идентификатор пайплайна для status-запросов.
func (p *Provisioner) ProvisionAsync(ctx context.Context, req domain.ProvisionRequest) (uuid.UUID, error) {
	st, err := p.prepare(ctx, req)
	if err != nil {
		return uuid.Nil, err
	}

	budget := p.coord.Timing().TotalBudget + p.asyncGrace
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		p.run(runCtx, st)
	}()

	return st.ID, nil
}

// prepare валидирует запрос, создаёт State и регистрирует запуск.
func (p *Provisioner) prepare(ctx context.Context, req domain.ProvisionRequest) (*pipeline.State, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	st := pipeline.NewState(req)
	if err := p.coord.Register(st); err != nil {
		return nil, err
	}

	if p.runs != nil {
		run := &domain.PipelineRun{
			ID:         st.ID,
			TenantID:   req.TenantID,
			Status:     domain.StatusInitializing,
			WebsiteURL: req.WebsiteURL,
			StartedAt:  st.StartedAt,
		}
		if err := p.runs.Create(ctx, run); err != nil {
			p.coord.Unregister(st.ID)
			return nil, err
		}
	}

	if p.events != nil {
		if err := p.events.PublishPipelineStarted(ctx, mq.PipelineStartedPayload{
			PipelineID: st.ID,
			TenantID:   req.TenantID,
			WebsiteURL: req.WebsiteURL,
		}); err != nil {
			p.logger.Warn("failed to publish pipeline started", "pipeline_id", st.ID, "error", err)
		}
	}

	return st, nil
}

// run выполняет цикл координации, классифицирует итог, при
// необходимости выполняет откат и финализирует запуск.
func (p *Provisioner) run(ctx context.Context, st *pipeline.State) *Result {
	defer p.coord.Unregister(st.ID)

	logger := telemetry.WithPipelineID(p.logger, st.ID.String())
	logger.Info("pipeline started",
		"tenant_id", st.Request.TenantID,
		"website_url", st.Request.WebsiteURL)

	results, coordErr := p.coord.Coordinate(ctx, st, p.instrumented(p.stages.Executor()))

	status, kind := p.classify(st, coordErr)

	if kind != "" && p.rollbacks.ShouldTrigger(st, kind) {
		st.SetStatus(domain.StatusRollingBack)
		report := p.rollbacks.Rollback(ctx, st)
		st.SetRollbackOutcome(true, report.Successful())

		// Полный откат после критического сбоя — терминальный
		// статус ROLLED_BACK вместо FAILED.
		if status == domain.StatusFailed {
			status = domain.StatusRolledBack
		}
	}

	st.MarkCompleted(status)

	result := p.buildResult(st, status, results)
	if result.Error == "" && coordErr != nil {
		result.Error = coordErr.Error()
	}
	p.finalize(ctx, st, result)

	logger.Info("pipeline finished",
		"status", result.Status,
		"completed_stages", len(result.CompletedStages),
		"failed_stages", len(result.FailedStages),
		"execution_time", result.ExecutionTime.Seconds())

	return result
}

// classify выводит терминальный статус и вид ошибки для решения об
// откате. Пустой вид ошибки — чистый успех, откат не рассматривается.
func (p *Provisioner) classify(st *pipeline.State, coordErr error) (domain.PipelineStatus, rollback.ErrorKind) {
	failed := st.FailedStages()
	completed := st.CompletedStages()

	if coordErr != nil {
		return domain.StatusFailed, rollback.KindCriticalFailure
	}

	for _, stage := range failed {
		if p.criticalStages[stage] {
			return domain.StatusFailed, rollback.KindCriticalFailure
		}
	}

	if len(completed) == p.coord.Graph().Size() {
		return domain.StatusCompleted, ""
	}

	// Исчерпание бюджета после хотя бы одного завершённого этапа
	// имеет приоритет над некритическими падениями: запуск упёрся
	// во время, а не в ошибки.
	timing := p.coord.Timing()
	if len(completed) > 0 && st.ApproachingTimeout(timing.TotalBudget, timing.WarningWindow) {
		return domain.StatusPartialTimeout, rollback.KindTimeout
	}

	if len(failed) == 0 {
		// Остановка по бюджету без единого падения.
		if len(completed) > 0 {
			return domain.StatusPartialTimeout, rollback.KindTimeout
		}
		return domain.StatusFailed, rollback.KindTimeout
	}

	// Некритические падения: итог зависит от того, добрался ли
	// пайплайн до существенных результатов.
	if p.rollbacks.HasEssentialResults(st) {
		return domain.StatusRecovered, rollback.KindPartialSuccess
	}
	return domain.StatusErrorRecovered, rollback.KindErrorRecovered
}

// instrumented оборачивает исполнителя публикацией событий этапов.
func (p *Provisioner) instrumented(exec pipeline.StageExecutor) pipeline.StageExecutor {
	if p.events == nil {
		return exec
	}

	return func(ctx context.Context, st *pipeline.State, stage string, strat pipeline.Strategy) (*pipeline.StageOutcome, error) {
		start := time.Now()
		outcome, err := exec(ctx, st, stage, strat)
		elapsed := time.Since(start)

		payload := mq.StageCompletedPayload{
			PipelineID:  st.ID,
			Stage:       stage,
			Status:      "completed",
			ExecutionMs: elapsed.Milliseconds(),
		}
		switch {
		case err != nil:
			payload.Status = "failed"
			payload.Error = err.Error()
		case outcome == nil || outcome.Status != pipeline.OutcomeSuccess:
			payload.Status = "failed"
			if outcome != nil {
				payload.Error = outcome.Error
			}
		}

		// Контекст этапа мог истечь — публикуем без его дедлайна.
		if pubErr := p.events.PublishStageCompleted(context.WithoutCancel(ctx), payload); pubErr != nil {
			p.logger.Warn("failed to publish stage event", "stage", stage, "error", pubErr)
		}

		return outcome, err
	}
}

// buildResult собирает Result из терминального State.
func (p *Provisioner) buildResult(st *pipeline.State, status domain.PipelineStatus, results map[string]map[string]any) *Result {
	attempted, successful := st.RollbackOutcome()

	result := &Result{
		PipelineID:         st.ID,
		Status:             status,
		CompletedStages:    st.CompletedStages(),
		FailedStages:       st.FailedStages(),
		StageResults:       results,
		ResourceCount:      st.ResourceCount(),
		RollbackAttempted:  attempted,
		RollbackSuccessful: successful,
		Error:              st.LastError(),
		ExecutionTime:      st.TotalExecutionTime(),
	}

	if data := results[pipeline.StageAgentCreation]; data != nil {
		result.ExternalID, _ = data["external_id"].(string)
		if idStr, ok := data["agent_id"].(string); ok {
			if id, err := uuid.Parse(idStr); err == nil {
				result.AgentID = &id
			}
		}
	}
	if data := results[pipeline.StagePhoneProvisioning]; data != nil {
		result.PhoneNumber, _ = data["phone_number"].(string)
	}

	return result
}

// finalize фиксирует итоговую запись запуска и публикует терминальное
// событие. Идемпотентен по pipeline ID: финализация и события
// завершения выполняются ровно один раз на запуск.
func (p *Provisioner) finalize(ctx context.Context, st *pipeline.State, result *Result) {
	onceAny, _ := p.finished.LoadOrStore(st.ID, &sync.Once{})
	onceAny.(*sync.Once).Do(func() {
		defer p.finished.Delete(st.ID)

		telemetry.PipelinesTotal.WithLabelValues(string(result.Status)).Inc()

		if p.runs != nil {
			run := &domain.PipelineRun{
				ID:                 st.ID,
				TenantID:           st.Request.TenantID,
				AgentID:            result.AgentID,
				Status:             result.Status,
				WebsiteURL:         st.Request.WebsiteURL,
				CompletedStages:    result.CompletedStages,
				FailedStages:       result.FailedStages,
				ResourceCount:      result.ResourceCount,
				RollbackAttempted:  result.RollbackAttempted,
				RollbackSuccessful: result.RollbackSuccessful,
				Error:              result.Error,
				ExecutionTime:      result.ExecutionTime,
				StartedAt:          st.StartedAt,
				CompletedAt:        st.CompletedAt(),
			}
			if err := p.runs.Finalize(ctx, run); err != nil {
				p.logger.Error("failed to finalize pipeline run", "pipeline_id", st.ID, "error", err)
			}
		}

		if p.events == nil {
			return
		}
		pubCtx := context.WithoutCancel(ctx)
		if result.Succeeded() {
			err := p.events.PublishPipelineFinished(pubCtx, mq.PipelineFinishedPayload{
				PipelineID:      st.ID,
				TenantID:        st.Request.TenantID,
				Status:          string(result.Status),
				AgentID:         result.AgentID,
				CompletedStages: result.CompletedStages,
				ExecutionMs:     result.ExecutionTime.Milliseconds(),
			})
			if err != nil {
				p.logger.Warn("failed to publish pipeline finished", "pipeline_id", st.ID, "error", err)
			}
			return
		}

		err := p.events.PublishPipelineFailed(pubCtx, mq.PipelineFailedPayload{
			PipelineID:         st.ID,
			TenantID:           st.Request.TenantID,
			Error:              result.Error,
			FailedStages:       result.FailedStages,
			ResourceCount:      result.ResourceCount,
			RollbackAttempted:  result.RollbackAttempted,
			RollbackSuccessful: result.RollbackSuccessful,
		})
		if err != nil {
			p.logger.Warn("failed to publish pipeline failed", "pipeline_id", st.ID, "error", err)
		}
	})
}
