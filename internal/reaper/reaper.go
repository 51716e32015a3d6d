package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/voxline/internal/mq"
	"github.com/shaiso/voxline/internal/rollback"
	"github.com/shaiso/voxline/internal/telemetry"
)

// Default configuration values.
const (
	defaultSchedule           = "*/5 * * * *"
	defaultBatchSize          = 100
	defaultPrefetch           = 5
	defaultPerResourceTimeout = 15 * time.Second
)

// HistoryStore — хранилище истории откатов, из которого reaper
// забирает кандидатов на дочистку.
type HistoryStore interface {
	ListFailed(ctx context.Context, limit int) ([]rollback.HistoryEntry, error)
	MarkResolved(ctx context.Context, entry *rollback.HistoryEntry) error
}

// Reaper повторяет неуспешные компенсации ресурсов.
//
// Reaper — stateless компонент: всё состояние живёт в rollback_history.
// Несколько экземпляров могут работать параллельно — повторная
// компенсация уже освобождённого ресурса идемпотентна на стороне
// провайдеров.
type Reaper struct {
	history      HistoryStore
	compensators rollback.Registry

	// MQ
	conn     *mq.Connection
	consumer *mq.Consumer

	// Cron
	schedule string
	cron     *cron.Cron

	// Configuration
	batchSize          int
	perResourceTimeout time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// sweepMu сериализует проходы: event-driven и cron-триггеры
	// не должны гоняться за одними записями.
	sweepMu sync.Mutex
}

// Config — конфигурация Reaper.
type Config struct {
	History      HistoryStore
	Compensators rollback.Registry

	// Conn — подключение к RabbitMQ (опционально; без него reaper
	// работает только по расписанию).
	Conn *mq.Connection

	// Schedule — cron-выражение регулярного прохода (default: */5 * * * *).
	Schedule string

	// BatchSize — количество записей за один проход (default: 100).
	BatchSize int

	// PerResourceTimeout — таймаут одной компенсации (default: 15s).
	PerResourceTimeout time.Duration

	Logger *slog.Logger
}

// New создаёт новый Reaper.
func New(cfg Config) *Reaper {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	timeout := cfg.PerResourceTimeout
	if timeout <= 0 {
		timeout = defaultPerResourceTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		history:            cfg.History,
		compensators:       cfg.Compensators,
		conn:               cfg.Conn,
		schedule:           schedule,
		batchSize:          batchSize,
		perResourceTimeout: timeout,
		logger:             logger,
	}
}

// Start запускает Reaper.
//
// Запускает:
//   - Consumer для pipelines.failed (если настроено подключение к MQ)
//   - Cron-расписание регулярных проходов
func (r *Reaper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancelFunc = cancel

	r.logger.Info("starting reaper",
		"schedule", r.schedule,
		"batch_size", r.batchSize,
	)

	if r.conn != nil {
		r.consumer = mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueuePipelineFailed),
			Handler:  r.handlePipelineFailed,
			Prefetch: defaultPrefetch,
		})

		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("pipeline failed consumer error", "error", err)
			}
		}()
	}

	r.cron = cron.New()
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if err := r.Sweep(ctx); err != nil {
			r.logger.Error("scheduled sweep failed", "error", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	r.cron.Start()

	r.logger.Info("reaper started")
	return nil
}

// Stop останавливает Reaper и дожидается текущего прохода.
func (r *Reaper) Stop() {
	r.logger.Info("stopping reaper...")

	if r.cron != nil {
		<-r.cron.Stop().Done()
	}

	if r.cancelFunc != nil {
		r.cancelFunc()
	}

	if r.consumer != nil {
		r.consumer.Stop()
	}

	r.wg.Wait()

	r.logger.Info("reaper stopped")
}

// handlePipelineFailed обрабатывает событие о неуспешном пайплайне.
//
// Событие — лишь триггер внеочередного прохода: сами ресурсы
// перечитываются из rollback_history, чтобы не зависеть от полноты
// payload'а и не обрабатывать одну запись дважды.
func (r *Reaper) handlePipelineFailed(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.PipelineFailedPayload](msg)
	if err != nil {
		// Сообщение некорректно — повторная доставка не поможет
		return fmt.Errorf("%w: pipeline.failed payload: %v", mq.ErrDrop, err)
	}

	r.logger.Info("pipeline failed event received",
		"pipeline_id", payload.PipelineID,
		"tenant_id", payload.TenantID,
		"rollback_attempted", payload.RollbackAttempted,
		"rollback_successful", payload.RollbackSuccessful,
	)

	// Дочищать есть что только после неполного отката
	if payload.RollbackAttempted && !payload.RollbackSuccessful {
		if err := r.Sweep(ctx); err != nil {
			return fmt.Errorf("event-driven sweep: %w", err)
		}
	}

	return nil
}

// Sweep выполняет один проход дочистки.
//
// 1. Забирает записи с failed_count > 0 (старые первыми)
// 2. Для каждой записи повторяет неуспешные компенсации
// 3. Полностью дочищенные записи помечает resolved
//
// Ошибки одной записи не блокируют обработку остальных.
func (r *Reaper) Sweep(ctx context.Context) error {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	entries, err := r.history.ListFailed(ctx, r.batchSize)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	r.logger.Debug("found unresolved rollbacks", "count", len(entries))

	var resolved int
	for i := range entries {
		entry := &entries[i]

		if r.retryEntry(ctx, entry) {
			if err := r.history.MarkResolved(ctx, entry); err != nil {
				r.logger.Error("failed to mark rollback resolved",
					"entry_id", entry.ID, "error", err)
				continue
			}
			resolved++
		}

		if ctx.Err() != nil {
			break
		}
	}

	r.logger.Info("sweep completed",
		"unresolved", len(entries),
		"resolved", resolved,
	)

	return nil
}

// retryEntry повторяет компенсации одной записи.
// Возвращает true, если все неуспехи записи дочищены.
func (r *Reaper) retryEntry(ctx context.Context, entry *rollback.HistoryEntry) bool {
	logger := r.logger.With(
		"entry_id", entry.ID,
		"pipeline_id", entry.PipelineID,
		"tenant_id", entry.TenantID,
	)

	clean := true
	for _, failure := range entry.Failures {
		res := failure.Resource()

		comp, ok := r.compensators.Lookup(res.Type)
		if !ok {
			// Тип без компенсатора никогда не дочистится —
			// оставлять запись в очереди бессмысленно
			logger.Warn("no compensator registered, skipping resource",
				"resource_type", res.Type, "resource_id", res.ID)
			continue
		}

		resCtx, cancel := context.WithTimeout(ctx, r.perResourceTimeout)
		err := comp.Compensate(resCtx, res)
		cancel()

		if err != nil {
			logger.Error("retry compensation failed",
				"resource_type", res.Type, "resource_id", res.ID, "error", err)
			telemetry.ReaperRetriesTotal.WithLabelValues(string(res.Type), "failed").Inc()
			clean = false
			continue
		}

		logger.Info("resource reaped",
			"resource_type", res.Type, "resource_id", res.ID)
		telemetry.ReaperRetriesTotal.WithLabelValues(string(res.Type), "success").Inc()
	}

	return clean
}
