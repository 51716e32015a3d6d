package domain

// PipelineStatus — статус выполнения пайплайна.
//
// Жизненный цикл:
//
//	INITIALIZING → RUNNING → COMPLETED
//	                       ↘ PARTIAL_TIMEOUT / RECOVERED / ERROR_RECOVERED
//	                       ↘ FAILED → ROLLING_BACK → ROLLED_BACK
type PipelineStatus string

const (
	// StatusInitializing — пайплайн создан, но ещё не начал выполняться.
	StatusInitializing PipelineStatus = "INITIALIZING"

	// StatusRunning — пайплайн в процессе выполнения.
	StatusRunning PipelineStatus = "RUNNING"

	// StatusCompleted — все этапы завершились успешно.
	StatusCompleted PipelineStatus = "COMPLETED"

	// StatusPartialTimeout — бюджет времени исчерпан, но критические
	// этапы успели завершиться. Агент работоспособен.
	StatusPartialTimeout PipelineStatus = "PARTIAL_TIMEOUT"

	// StatusRecovered — часть некритических этапов упала,
	// критические завершились. Агент работоспособен.
	StatusRecovered PipelineStatus = "RECOVERED"

	// StatusErrorRecovered — выполнение прервано ошибкой, но к этому
	// моменту критические этапы уже завершились.
	StatusErrorRecovered PipelineStatus = "ERROR_RECOVERED"

	// StatusFailed — критический этап не завершился. Агент неработоспособен.
	StatusFailed PipelineStatus = "FAILED"

	// StatusRollingBack — идёт компенсация созданных ресурсов.
	StatusRollingBack PipelineStatus = "ROLLING_BACK"

	// StatusRolledBack — компенсация завершена (полностью или частично).
	StatusRolledBack PipelineStatus = "ROLLED_BACK"
)

// IsTerminal возвращает true, если статус финальный (пайплайн завершён).
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusPartialTimeout, StatusRecovered,
		StatusErrorRecovered, StatusFailed, StatusRolledBack:
		return true
	default:
		return false
	}
}

// IsOperational возвращает true, если итоговый статус означает
// работоспособного агента (полный или деградированный успех).
func (s PipelineStatus) IsOperational() bool {
	switch s {
	case StatusCompleted, StatusPartialTimeout, StatusRecovered, StatusErrorRecovered:
		return true
	default:
		return false
	}
}

// StageStatus — статус выполнения отдельного этапа пайплайна.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
type StageStatus string

const (
	// StageRunning — этап выполняется.
	StageRunning StageStatus = "RUNNING"

	// StageCompleted — этап успешно завершён.
	StageCompleted StageStatus = "COMPLETED"

	// StageFailed — этап завершился с ошибкой или по таймауту.
	StageFailed StageStatus = "FAILED"
)

// IsTerminal возвращает true, если статус этапа финальный.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}
