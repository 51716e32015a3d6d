package pipeline

import "time"

// Mode — режим выполнения этапов.
type Mode string

const (
	// ModeSequential — этапы выполняются по одному.
	ModeSequential Mode = "sequential"

	// ModeParallel — готовые этапы параллельной группы
	// запускаются одновременно.
	ModeParallel Mode = "parallel"
)

// Strategy — решение координатора о способе выполнения.
//
// Значение неизменяемое: координатор строит новую Strategy перед
// каждой планировочной итерацией и передаёт её исполнителям этапов.
type Strategy struct {
	// Mode — sequential или parallel.
	Mode Mode

	// UseFallbacks — исполнители должны предпочитать дешёвые
	// приближённые пути (кэш, rule-based извлечение).
	UseFallbacks bool

	// SkipOptional — выполняется только минимальный критический путь.
	SkipOptional bool

	// PriorityStages — критический путь при SkipOptional.
	PriorityStages []string

	// TimeoutAdjustments — ужатые таймауты этапов
	// (пусто, если масштабирование не требуется).
	TimeoutAdjustments map[string]time.Duration

	// TimeRemaining — остаток бюджета в момент принятия решения.
	TimeRemaining time.Duration
}

// StageTimeout возвращает таймаут этапа с учётом масштабирования.
func (s Strategy) StageTimeout(stage string, base time.Duration) time.Duration {
	if adj, ok := s.TimeoutAdjustments[stage]; ok {
		return adj
	}
	return base
}

// IsPriority проверяет, входит ли этап в критический путь стратегии.
// Без SkipOptional приоритетны все этапы.
func (s Strategy) IsPriority(stage string) bool {
	if !s.SkipOptional {
		return true
	}
	for _, p := range s.PriorityStages {
		if p == stage {
			return true
		}
	}
	return false
}

// Policy — пороги принятия решений о стратегии.
// Значения по умолчанию — DefaultPolicy.
type Policy struct {
	// ParallelMinRemaining — минимальный остаток бюджета,
	// при котором разрешён параллельный режим.
	ParallelMinRemaining time.Duration

	// FallbackBelow — ниже этого остатка включаются fallback-пути.
	FallbackBelow time.Duration

	// SkipOptionalBelow — ниже этого остатка выполняется только
	// критический путь.
	SkipOptionalBelow time.Duration

	// ScaleTimeoutsBelow — ниже этого остатка таймауты этапов
	// ужимаются так, чтобы их сумма влезла в ScaleBuffer от остатка.
	ScaleTimeoutsBelow time.Duration

	// ScaleBuffer — доля остатка, отводимая на сами этапы
	// (остальное — запас на финальную бухгалтерию).
	ScaleBuffer float64

	// MinStageTimeout — нижняя граница ужатого таймаута этапа.
	MinStageTimeout time.Duration

	// CriticalPath — минимальный критический путь при SkipOptional.
	CriticalPath []string
}

// DefaultPolicy возвращает пороги по умолчанию.
func DefaultPolicy() Policy {
	return Policy{
		ParallelMinRemaining: 60 * time.Second,
		FallbackBelow:        90 * time.Second,
		SkipOptionalBelow:    60 * time.Second,
		ScaleTimeoutsBelow:   120 * time.Second,
		ScaleBuffer:          0.8,
		MinStageTimeout:      5 * time.Second,
		CriticalPath: []string{
			StageWebCrawling,
			StageContentExtraction,
			StageAgentCreation,
			StagePhoneProvisioning,
		},
	}
}

// Timing — бюджеты времени пайплайна.
type Timing struct {
	// TotalBudget — общий wall-clock бюджет запуска.
	TotalBudget time.Duration

	// WarningWindow — окно до исчерпания бюджета, в котором
	// координатор прекращает планирование.
	WarningWindow time.Duration

	// StageTimeouts — таймаут каждого этапа.
	StageTimeouts map[string]time.Duration

	// DefaultStageTimeout — таймаут для этапа без записи в таблице.
	DefaultStageTimeout time.Duration
}

// DefaultTiming возвращает бюджеты по умолчанию.
func DefaultTiming() Timing {
	return Timing{
		TotalBudget:   180 * time.Second,
		WarningWindow: 30 * time.Second,
		StageTimeouts: map[string]time.Duration{
			StageWebCrawling:       45 * time.Second,
			StageContentExtraction: 30 * time.Second,
			StageKnowledgeBase:     15 * time.Second,
			StageAgentCreation:     20 * time.Second,
			StagePhoneProvisioning: 25 * time.Second,
			StageFinalIntegration:  15 * time.Second,
		},
		DefaultStageTimeout: 20 * time.Second,
	}
}

// StageTimeout возвращает базовый таймаут этапа.
func (t Timing) StageTimeout(stage string) time.Duration {
	if d, ok := t.StageTimeouts[stage]; ok {
		return d
	}
	return t.DefaultStageTimeout
}
