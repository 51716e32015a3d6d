package pipeline

import "errors"

// Ошибки координатора пайплайна.
var (
	// ErrCyclicDependency — обнаружена циклическая зависимость в графе этапов.
	ErrCyclicDependency = errors.New("cyclic dependency in stage graph")

	// ErrUnknownStage — этап ссылается на несуществующую зависимость.
	ErrUnknownStage = errors.New("unknown stage in dependency table")

	// ErrGraphStuck — нет готовых этапов, хотя незавершённые остались
	// и ни один этап не упал. Ошибка конфигурации графа: она всегда
	// поднимается наверх, никогда не трактуется как успех.
	ErrGraphStuck = errors.New("dependency graph is stuck: no stage is ready")

	// ErrPipelineAlreadyActive — пайплайн с таким ID уже зарегистрирован.
	ErrPipelineAlreadyActive = errors.New("pipeline already registered")

	// ErrPipelineNotActive — пайплайн не найден в реестре активных.
	ErrPipelineNotActive = errors.New("pipeline not in active registry")
)
