package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
	"github.com/shaiso/voxline/internal/telemetry"
)

// Статусы результата исполнителя этапа.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// ResourceDecl — декларация созданного ресурса в результате этапа.
// Координатор переносит её в State, проставляя приоритет компенсации
// из таблицы типов.
type ResourceDecl struct {
	Type domain.ResourceType `json:"resource_type"`
	ID   string              `json:"resource_id"`
	Data map[string]any      `json:"resource_data,omitempty"`
}

// StageOutcome — результат исполнителя этапа.
//
// Любой статус кроме success, как и возвращённая ошибка,
// трактуется координатором как падение этапа.
type StageOutcome struct {
	// Status — success или error.
	Status string `json:"status"`

	// Payload — полезная нагрузка этапа.
	Payload map[string]any `json:"payload,omitempty"`

	// Error — описание ошибки при Status = error.
	Error string `json:"error,omitempty"`

	// Resources — ресурсы, созданные этапом.
	Resources []ResourceDecl `json:"created_resources,omitempty"`
}

// StageExecutor — контракт исполнителя этапа.
//
// Исполнитель обязан уважать дедлайн переданного контекста:
// координатор проверяет бюджет только между планировочными
// решениями и не прерывает этап принудительно.
type StageExecutor func(ctx context.Context, st *State, stage string, strat Strategy) (*StageOutcome, error)

// Coordinator — владелец графа зависимостей, бюджетов времени
// и реестра активных запусков.
//
// Coordinator создаётся один раз на процесс и внедряется во все
// компоненты, которым нужен доступ к активным запускам. Реестр
// защищён мьютексом; состояние каждого запуска живёт в его State.
type Coordinator struct {
	graph  *Graph
	timing Timing
	policy Policy

	// stopOnFailure — этапы, падение которых немедленно
	// останавливает цикл планирования.
	stopOnFailure map[string]bool

	mu     sync.RWMutex
	active map[uuid.UUID]*State

	logger *slog.Logger
}

// Config — параметры создания Coordinator.
type Config struct {
	// Graph — граф зависимостей. По умолчанию DefaultGraph().
	Graph *Graph

	// Timing — бюджеты времени. По умолчанию DefaultTiming().
	Timing Timing

	// Policy — пороги стратегии. По умолчанию DefaultPolicy().
	Policy Policy

	// StopOnFailure — этапы, останавливающие цикл при падении.
	// По умолчанию {agent_creation}.
	StopOnFailure []string

	// Logger — логгер. По умолчанию slog.Default().
	Logger *slog.Logger
}

// New создаёт Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Graph == nil {
		cfg.Graph = DefaultGraph()
	}
	if cfg.Timing.TotalBudget == 0 {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Policy.ParallelMinRemaining == 0 {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.StopOnFailure == nil {
		cfg.StopOnFailure = []string{StageAgentCreation}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	stop := make(map[string]bool, len(cfg.StopOnFailure))
	for _, s := range cfg.StopOnFailure {
		stop[s] = true
	}

	return &Coordinator{
		graph:         cfg.Graph,
		timing:        cfg.Timing,
		policy:        cfg.Policy,
		stopOnFailure: stop,
		active:        make(map[uuid.UUID]*State),
		logger:        cfg.Logger,
	}
}

// Graph возвращает граф зависимостей.
func (c *Coordinator) Graph() *Graph {
	return c.graph
}

// Timing возвращает бюджеты времени.
func (c *Coordinator) Timing() Timing {
	return c.timing
}

// Register добавляет запуск в реестр активных.
func (c *Coordinator) Register(st *State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[st.ID]; exists {
		return fmt.Errorf("%w: %s", ErrPipelineAlreadyActive, st.ID)
	}
	c.active[st.ID] = st
	telemetry.ActivePipelines.Inc()
	return nil
}

// Unregister убирает запуск из реестра активных.
func (c *Coordinator) Unregister(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[id]; exists {
		delete(c.active, id)
		telemetry.ActivePipelines.Dec()
	}
}

// Get возвращает State активного запуска.
func (c *Coordinator) Get(id uuid.UUID) (*State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st, ok := c.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotActive, id)
	}
	return st, nil
}

// ActiveCount возвращает число активных запусков.
func (c *Coordinator) ActiveCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.active)
}

// StatusSnapshot — срез состояния активного запуска для status-запросов.
type StatusSnapshot struct {
	PipelineID         uuid.UUID             `json:"pipeline_id"`
	Status             domain.PipelineStatus `json:"status"`
	Progress           float64               `json:"progress_percentage"`
	TimeRemaining      float64               `json:"time_remaining_seconds"`
	CurrentStage       string                `json:"current_stage,omitempty"`
	CompletedStages    []string              `json:"completed_stages"`
	FailedStages       []string              `json:"failed_stages"`
	ApproachingTimeout bool                  `json:"is_approaching_timeout"`
}

// PipelineStatus возвращает срез состояния активного запуска.
func (c *Coordinator) PipelineStatus(id uuid.UUID) (*StatusSnapshot, error) {
	st, err := c.Get(id)
	if err != nil {
		return nil, err
	}

	return &StatusSnapshot{
		PipelineID:         st.ID,
		Status:             st.Status(),
		Progress:           st.Progress(c.graph.Size()),
		TimeRemaining:      st.TimeRemaining(c.timing.TotalBudget).Seconds(),
		CurrentStage:       st.CurrentStage(),
		CompletedStages:    st.CompletedStages(),
		FailedStages:       st.FailedStages(),
		ApproachingTimeout: st.ApproachingTimeout(c.timing.TotalBudget, c.timing.WarningWindow),
	}, nil
}

// CanExecute проверяет, готов ли этап к выполнению: этап не терминален
// и все его prerequisites завершены успешно.
func (c *Coordinator) CanExecute(st *State, stage string) bool {
	if !c.graph.Contains(stage) {
		return false
	}
	if st.IsCompleted(stage) || st.IsFailed(stage) {
		return false
	}
	for _, prereq := range c.graph.Prerequisites(stage) {
		if !st.IsCompleted(prereq) {
			return false
		}
	}
	return true
}

// ReadyStages возвращает готовые этапы в топологическом порядке.
func (c *Coordinator) ReadyStages(st *State) []string {
	ready := make([]string, 0, c.graph.Size())
	for _, stage := range c.graph.Stages() {
		if c.CanExecute(st, stage) {
			ready = append(ready, stage)
		}
	}
	return ready
}

// ParallelStages возвращает готовые этапы, входящие в параллельную
// группу, у которой готовы минимум два участника. Единственный готовый
// участник группы параллельным не считается: он выполняется
// последовательно.
func (c *Coordinator) ParallelStages(st *State) []string {
	ready := c.ReadyStages(st)
	return c.parallelAmong(ready)
}

func (c *Coordinator) parallelAmong(ready []string) []string {
	readySet := make(map[string]bool, len(ready))
	for _, s := range ready {
		readySet[s] = true
	}

	out := make([]string, 0, len(ready))
	for _, stage := range ready {
		group := c.graph.ParallelGroupOf(stage)
		if group == nil {
			continue
		}
		n := 0
		for _, member := range group {
			if readySet[member] {
				n++
			}
		}
		if n >= 2 {
			out = append(out, stage)
		}
	}
	return out
}

// ExecutionStrategy строит стратегию выполнения по остатку бюджета.
//
// Правила (проверяются от текущего TimeRemaining):
//   - есть параллельно-готовые этапы и остаток > ParallelMinRemaining → parallel;
//   - остаток < FallbackBelow → use_fallbacks;
//   - остаток < SkipOptionalBelow → только критический путь;
//   - остаток < ScaleTimeoutsBelow → таймауты оставшихся этапов
//     ужимаются, чтобы их сумма влезла в ScaleBuffer от остатка.
func (c *Coordinator) ExecutionStrategy(st *State) Strategy {
	remaining := st.TimeRemaining(c.timing.TotalBudget)

	strat := Strategy{
		Mode:          ModeSequential,
		TimeRemaining: remaining,
	}

	if len(c.ParallelStages(st)) >= 2 && remaining > c.policy.ParallelMinRemaining {
		strat.Mode = ModeParallel
	}
	if remaining < c.policy.FallbackBelow {
		strat.UseFallbacks = true
	}
	if remaining < c.policy.SkipOptionalBelow {
		strat.SkipOptional = true
		strat.PriorityStages = c.policy.CriticalPath
	}
	if remaining < c.policy.ScaleTimeoutsBelow {
		strat.TimeoutAdjustments = c.scaledTimeouts(st, remaining)
	}

	return strat
}

// scaledTimeouts ужимает таймауты незавершённых этапов пропорционально,
// чтобы их сумма влезла в ScaleBuffer от остатка бюджета.
func (c *Coordinator) scaledTimeouts(st *State, remaining time.Duration) map[string]time.Duration {
	pending := make([]string, 0, c.graph.Size())
	var total time.Duration
	for _, stage := range c.graph.Stages() {
		if st.IsTerminal(stage) {
			continue
		}
		pending = append(pending, stage)
		total += c.timing.StageTimeout(stage)
	}
	if len(pending) == 0 || total == 0 {
		return nil
	}

	budget := time.Duration(float64(remaining) * c.policy.ScaleBuffer)
	if total <= budget {
		return nil
	}

	factor := float64(budget) / float64(total)
	out := make(map[string]time.Duration, len(pending))
	for _, stage := range pending {
		scaled := time.Duration(float64(c.timing.StageTimeout(stage)) * factor)
		if scaled < c.policy.MinStageTimeout {
			scaled = c.policy.MinStageTimeout
		}
		out[stage] = scaled
	}
	return out
}

// Coordinate — цикл выполнения этапов одного запуска.
//
// На каждой итерации пересчитывает готовое множество и стратегию,
// запускает либо параллельный батч, либо один этап, и применяет
// результаты к State. Останавливается, когда все этапы терминальны,
// бюджет на исходе, либо упал критический этап. Застрявший граф
// (нет готовых этапов, нет падений, этапы остались) — ошибка
// конфигурации, возвращается ErrGraphStuck.
//
// Возвращает накопленные payload завершённых этапов.
func (c *Coordinator) Coordinate(ctx context.Context, st *State, exec StageExecutor) (map[string]map[string]any, error) {
	logger := telemetry.WithPipelineID(c.logger, st.ID.String())
	results := make(map[string]map[string]any)

	for {
		if err := ctx.Err(); err != nil {
			logger.Warn("coordination cancelled", "error", err)
			return results, nil
		}

		if st.ApproachingTimeout(c.timing.TotalBudget, c.timing.WarningWindow) {
			logger.Warn("time budget nearly exhausted, stopping scheduling",
				"time_remaining", st.TimeRemaining(c.timing.TotalBudget).Seconds())
			return results, nil
		}

		ready := c.ReadyStages(st)
		if len(ready) == 0 {
			if c.allTerminal(st) {
				return results, nil
			}
			if len(st.FailedStages()) > 0 {
				// Оставшиеся этапы заблокированы упавшими
				// prerequisites. Нормальная остановка.
				logger.Info("remaining stages blocked by failed prerequisites",
					"failed_stages", st.FailedStages())
				return results, nil
			}
			logger.Error("dependency graph is stuck", "completed", st.CompletedStages())
			return results, ErrGraphStuck
		}

		strat := c.ExecutionStrategy(st)

		if strat.SkipOptional {
			ready = filterPriority(ready, strat)
			if len(ready) == 0 {
				logger.Warn("skipping optional stages under time pressure",
					"time_remaining", strat.TimeRemaining.Seconds())
				return results, nil
			}
		}

		if strat.Mode == ModeParallel {
			if batch := c.parallelAmong(ready); len(batch) >= 2 {
				c.runParallelBatch(ctx, st, batch, strat, exec, results, logger)
			} else {
				c.runStage(ctx, st, ready[0], strat, exec, results, logger)
			}
		} else {
			c.runStage(ctx, st, ready[0], strat, exec, results, logger)
		}

		if stage, ok := c.criticalFailure(st); ok {
			logger.Error("critical stage failed, stopping scheduling", "stage", stage)
			return results, nil
		}
	}
}

// runStage выполняет один этап под его таймаутом и применяет
// результат к State.
func (c *Coordinator) runStage(ctx context.Context, st *State, stage string, strat Strategy, exec StageExecutor, results map[string]map[string]any, logger *slog.Logger) {
	st.StartStage(stage)
	outcome := c.invokeStage(ctx, st, stage, strat, exec, logger)
	c.applyOutcome(st, stage, outcome, results, logger)
}

// runParallelBatch запускает батч этапов одновременно и дожидается
// терминального результата каждого. Результаты стекаются через канал
// и применяются к State только циклом координации: у State один
// логический писатель на батч.
func (c *Coordinator) runParallelBatch(ctx context.Context, st *State, batch []string, strat Strategy, exec StageExecutor, results map[string]map[string]any, logger *slog.Logger) {
	logger.Info("launching parallel batch", "stages", batch)

	type stageOutcome struct {
		stage   string
		outcome outcomeRecord
	}

	// StartStage для всего батча до запуска горутин: записи этапов
	// должны существовать раньше любых терминальных переходов.
	for _, stage := range batch {
		st.StartStage(stage)
	}

	ch := make(chan stageOutcome, len(batch))
	for _, stage := range batch {
		go func(stage string) {
			ch <- stageOutcome{stage: stage, outcome: c.invokeStage(ctx, st, stage, strat, exec, logger)}
		}(stage)
	}

	for range batch {
		res := <-ch
		c.applyOutcome(st, res.stage, res.outcome, results, logger)
	}
}

// outcomeRecord — внутренний результат вызова исполнителя.
type outcomeRecord struct {
	outcome  *StageOutcome
	err      error
	timedOut bool
	timeout  time.Duration
	elapsed  time.Duration
}

// invokeStage вызывает исполнителя этапа под per-stage таймаутом.
func (c *Coordinator) invokeStage(ctx context.Context, st *State, stage string, strat Strategy, exec StageExecutor, logger *slog.Logger) outcomeRecord {
	timeout := strat.StageTimeout(stage, c.timing.StageTimeout(stage))

	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	outcome, err := exec(stageCtx, st, stage, strat)
	elapsed := time.Since(start)

	return outcomeRecord{
		outcome:  outcome,
		err:      err,
		timedOut: stageCtx.Err() == context.DeadlineExceeded,
		timeout:  timeout,
		elapsed:  elapsed,
	}
}

// applyOutcome применяет результат этапа к State: терминальный переход,
// перенос созданных ресурсов, метрики.
func (c *Coordinator) applyOutcome(st *State, stage string, rec outcomeRecord, results map[string]map[string]any, logger *slog.Logger) {
	// Запись этапа должна существовать до терминального перехода,
	// даже если выполнение шло в обход координатора.
	st.StartStage(stage)

	switch {
	case rec.timedOut:
		msg := fmt.Sprintf("stage timed out after %s", rec.timeout)
		st.FailStage(stage, msg)
		logger.Warn("stage timed out", "stage", stage, "timeout", rec.timeout.Seconds())
		telemetry.StageDuration.WithLabelValues(stage, "timeout").Observe(rec.elapsed.Seconds())

	case rec.err != nil:
		st.FailStage(stage, rec.err.Error())
		logger.Error("stage failed", "stage", stage, "error", rec.err)
		telemetry.StageDuration.WithLabelValues(stage, "error").Observe(rec.elapsed.Seconds())

	case rec.outcome == nil || rec.outcome.Status != OutcomeSuccess:
		msg := "stage returned error status"
		if rec.outcome != nil && rec.outcome.Error != "" {
			msg = rec.outcome.Error
		}
		st.FailStage(stage, msg)
		logger.Error("stage failed", "stage", stage, "error", msg)
		telemetry.StageDuration.WithLabelValues(stage, "error").Observe(rec.elapsed.Seconds())

	default:
		for _, decl := range rec.outcome.Resources {
			st.AddResource(domain.Resource{
				Type:  decl.Type,
				ID:    decl.ID,
				Stage: stage,
				Data:  decl.Data,
			})
		}
		st.CompleteStage(stage, rec.outcome.Payload)
		results[stage] = rec.outcome.Payload
		logger.Info("stage completed", "stage", stage, "duration", rec.elapsed.Seconds())
		telemetry.StageDuration.WithLabelValues(stage, "completed").Observe(rec.elapsed.Seconds())
	}
}

// allTerminal проверяет, что каждый этап графа завершён или упал.
func (c *Coordinator) allTerminal(st *State) bool {
	for _, stage := range c.graph.Stages() {
		if !st.IsCompleted(stage) && !st.IsFailed(stage) {
			return false
		}
	}
	return true
}

// criticalFailure возвращает упавший критический этап, если такой есть.
func (c *Coordinator) criticalFailure(st *State) (string, bool) {
	for _, stage := range st.FailedStages() {
		if c.stopOnFailure[stage] {
			return stage, true
		}
	}
	return "", false
}

func filterPriority(ready []string, strat Strategy) []string {
	out := make([]string, 0, len(ready))
	for _, stage := range ready {
		if strat.IsPriority(stage) {
			out = append(out, stage)
		}
	}
	return out
}
