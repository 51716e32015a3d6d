package pipeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
)

// StageResult — результат выполнения одного этапа.
//
// Запись создаётся в момент старта этапа и переводится в терминальную
// форму при завершении; терминальная запись больше никогда не меняется.
type StageResult struct {
	// StageName — имя этапа.
	StageName string `json:"stage_name"`

	// Status — текущий статус этапа.
	Status domain.StageStatus `json:"status"`

	// StartTime — время старта этапа.
	StartTime time.Time `json:"start_time"`

	// EndTime — время завершения. Nil, пока этап выполняется.
	EndTime *time.Time `json:"end_time,omitempty"`

	// Data — полезная нагрузка, возвращённая исполнителем этапа.
	Data map[string]any `json:"data,omitempty"`

	// ErrorMessage — текст ошибки для упавшего этапа.
	ErrorMessage string `json:"error_message,omitempty"`

	// ExecutionTime — длительность выполнения (EndTime − StartTime).
	ExecutionTime time.Duration `json:"execution_time"`
}

// State — состояние одного запуска пайплайна.
//
// Владелец State — драйвер запуска; другие запуски его не видят.
// Все методы потокобезопасны: во время параллельного батча результаты
// этапов применяются к одному State из нескольких горутин.
//
// Методы State — чистая бухгалтерия: они не возвращают ошибок и не
// делают I/O. Любая интерпретация состояния (классификация, откат)
// принадлежит координатору и драйверу.
type State struct {
	// ID — идентификатор пайплайна.
	ID uuid.UUID

	// Request — исходный запрос на создание агента.
	Request domain.ProvisionRequest

	// StartedAt — время старта пайплайна.
	StartedAt time.Time

	mu sync.RWMutex

	status          domain.PipelineStatus
	currentStage    string
	completedStages []string
	failedStages    []string
	stageResults    map[string]*StageResult
	resources       []domain.Resource
	lastError       string
	completedAt     *time.Time
	totalExecution  time.Duration

	rollbackAttempted  bool
	rollbackSuccessful bool
}

// NewState создаёт State для нового запуска пайплайна.
func NewState(req domain.ProvisionRequest) *State {
	return &State{
		ID:           uuid.New(),
		Request:      req,
		StartedAt:    time.Now(),
		status:       domain.StatusInitializing,
		stageResults: make(map[string]*StageResult),
	}
}

// StartStage создаёт running-запись для этапа и делает его текущим.
//
// Вызов идемпотентен: повторный старт до терминального перехода
// перезаписывает running-запись, но терминальную запись не трогает.
// Координатор вызывает StartStage перед каждым терминальным переходом,
// чтобы запись гарантированно существовала, даже если этап выполнялся
// в обход координатора.
func (s *State) StartStage(name string) *StageResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.stageResults[name]; ok && existing.Status.IsTerminal() {
		return existing
	}

	result := &StageResult{
		StageName: name,
		Status:    domain.StageRunning,
		StartTime: time.Now(),
	}
	s.stageResults[name] = result
	s.currentStage = name

	if s.status == domain.StatusInitializing {
		s.status = domain.StatusRunning
	}

	return result
}

// CompleteStage переводит этап в COMPLETED и записывает payload.
//
// Имя этапа попадает в completedStages ровно один раз; повторный
// вызов для уже терминального этапа игнорируется.
func (s *State) CompleteStage(name string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isTerminalLocked(name) {
		return
	}

	result, ok := s.stageResults[name]
	if !ok {
		result = &StageResult{StageName: name, StartTime: time.Now()}
		s.stageResults[name] = result
	}

	now := time.Now()
	result.Status = domain.StageCompleted
	result.EndTime = &now
	result.Data = payload
	result.ExecutionTime = now.Sub(result.StartTime)

	s.completedStages = append(s.completedStages, name)
	if s.currentStage == name {
		s.currentStage = ""
	}
}

// FailStage переводит этап в FAILED и запоминает последнюю ошибку.
func (s *State) FailStage(name, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isTerminalLocked(name) {
		return
	}

	result, ok := s.stageResults[name]
	if !ok {
		result = &StageResult{StageName: name, StartTime: time.Now()}
		s.stageResults[name] = result
	}

	now := time.Now()
	result.Status = domain.StageFailed
	result.EndTime = &now
	result.ErrorMessage = errMsg
	result.ExecutionTime = now.Sub(result.StartTime)

	s.failedStages = append(s.failedStages, name)
	s.lastError = errMsg
	if s.currentStage == name {
		s.currentStage = ""
	}
}

// isTerminalLocked проверяет, достиг ли этап терминального статуса.
// Вызывается под мьютексом.
func (s *State) isTerminalLocked(name string) bool {
	result, ok := s.stageResults[name]
	return ok && result.Status.IsTerminal()
}

// AddResource регистрирует созданный этапом ресурс. Никогда не падает.
func (s *State) AddResource(res domain.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now()
	}
	if res.Priority == 0 {
		res.Priority = res.Type.RollbackPriority()
	}
	s.resources = append(s.resources, res)
}

// ResourcesForRollback возвращает ресурсы в порядке компенсации:
// по убыванию приоритета, при равном приоритете — в порядке создания
// (stable sort).
func (s *State) ResourcesForRollback() []domain.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Resource, len(s.resources))
	copy(out, s.resources)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// Resources возвращает ресурсы в порядке создания.
func (s *State) Resources() []domain.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

// ResourceCount возвращает число созданных ресурсов.
func (s *State) ResourceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.resources)
}

// SetStatus устанавливает статус пайплайна.
func (s *State) SetStatus(status domain.PipelineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
}

// Status возвращает текущий статус пайплайна.
func (s *State) Status() domain.PipelineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// MarkCompleted переводит пайплайн в терминальный статус
// и фиксирует общее время выполнения.
func (s *State) MarkCompleted(status domain.PipelineStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.status = status
	s.completedAt = &now
	s.totalExecution = now.Sub(s.StartedAt)
}

// MarkFailed переводит пайплайн в FAILED с текстом ошибки.
func (s *State) MarkFailed(errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.status = domain.StatusFailed
	s.lastError = errMsg
	s.completedAt = &now
	s.totalExecution = now.Sub(s.StartedAt)
}

// SetRollbackOutcome записывает итог отката.
func (s *State) SetRollbackOutcome(attempted, successful bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollbackAttempted = attempted
	s.rollbackSuccessful = successful
}

// RollbackOutcome возвращает итог отката (attempted, successful).
func (s *State) RollbackOutcome() (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rollbackAttempted, s.rollbackSuccessful
}

// TimeRemaining возвращает остаток бюджета времени: max(0, budget − elapsed).
//
// Значение вычисляется от wall-clock на каждый вызов и никогда
// не кэшируется: координатор перечитывает его перед каждым
// планировочным решением.
func (s *State) TimeRemaining(budget time.Duration) time.Duration {
	elapsed := time.Since(s.StartedAt)
	if elapsed >= budget {
		return 0
	}
	return budget - elapsed
}

// ApproachingTimeout возвращает true, если остаток бюджета
// не превышает warning-окно.
func (s *State) ApproachingTimeout(budget, warning time.Duration) bool {
	return s.TimeRemaining(budget) <= warning
}

// Progress возвращает процент завершённых этапов от totalStages.
func (s *State) Progress(totalStages int) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if totalStages == 0 {
		return 0
	}
	return float64(len(s.completedStages)) / float64(totalStages) * 100
}

// CurrentStage возвращает имя этапа в полёте, или "".
func (s *State) CurrentStage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.currentStage
}

// CompletedStages возвращает завершённые этапы в порядке завершения.
func (s *State) CompletedStages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.completedStages))
	copy(out, s.completedStages)
	return out
}

// FailedStages возвращает упавшие этапы в порядке падения.
func (s *State) FailedStages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.failedStages))
	copy(out, s.failedStages)
	return out
}

// LastFailedStage возвращает последний упавший этап, или "".
func (s *State) LastFailedStage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.failedStages) == 0 {
		return ""
	}
	return s.failedStages[len(s.failedStages)-1]
}

// IsCompleted проверяет, завершён ли этап успешно.
func (s *State) IsCompleted(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.containsLocked(s.completedStages, name)
}

// IsFailed проверяет, упал ли этап.
func (s *State) IsFailed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.containsLocked(s.failedStages, name)
}

// IsTerminal проверяет, достиг ли этап терминального статуса.
func (s *State) IsTerminal(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.isTerminalLocked(name)
}

func (s *State) containsLocked(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}

// StageResultFor возвращает копию результата этапа, или nil.
func (s *State) StageResultFor(name string) *StageResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.stageResults[name]
	if !ok {
		return nil
	}
	cp := *result
	return &cp
}

// StageStatuses возвращает срез статусов всех этапов с записями.
func (s *State) StageStatuses() map[string]domain.StageStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.StageStatus, len(s.stageResults))
	for name, result := range s.stageResults {
		out[name] = result.Status
	}
	return out
}

// StageTiming возвращает длительность каждого завершившегося этапа.
func (s *State) StageTiming() map[string]time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Duration, len(s.stageResults))
	for name, result := range s.stageResults {
		if result.EndTime != nil {
			out[name] = result.ExecutionTime
		}
	}
	return out
}

// LastError возвращает текст последней ошибки.
func (s *State) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastError
}

// TotalExecutionTime возвращает зафиксированное общее время выполнения.
// До терминального перехода возвращает время с момента старта.
func (s *State) TotalExecutionTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.completedAt != nil {
		return s.totalExecution
	}
	return time.Since(s.StartedAt)
}

// CompletedAt возвращает время терминального перехода, или nil.
func (s *State) CompletedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completedAt
}
