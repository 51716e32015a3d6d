package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики пайплайна. Регистрируются в default registry при импорте
// пакета; экспортируются через promhttp в каждом бинарнике.
var (
	// PipelinesTotal — завершённые пайплайны по итоговому статусу.
	PipelinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voxline",
		Name:      "pipelines_total",
		Help:      "Completed provisioning pipelines by final status.",
	}, []string{"status"})

	// ActivePipelines — число пайплайнов в работе.
	ActivePipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voxline",
		Name:      "active_pipelines",
		Help:      "Number of pipelines currently executing.",
	})

	// StageDuration — длительность этапов в секундах.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voxline",
		Name:      "stage_duration_seconds",
		Help:      "Stage execution time by stage name and outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
	}, []string{"stage", "status"})

	// RollbackResourcesTotal — результаты компенсации ресурсов.
	RollbackResourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voxline",
		Name:      "rollback_resources_total",
		Help:      "Compensated resources by type and outcome.",
	}, []string{"resource_type", "outcome"})

	// RollbacksTotal — выполненные откаты по итоговому статусу отчёта.
	RollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voxline",
		Name:      "rollbacks_total",
		Help:      "Rollback passes by report status.",
	}, []string{"status"})

	// ReaperRetriesTotal — повторные компенсации reaper'а по итогу.
	ReaperRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voxline",
		Name:      "reaper_retries_total",
		Help:      "Reaper compensation retries by resource type and outcome.",
	}, []string{"resource_type", "outcome"})

	// ContentCacheHits — попадания и промахи кэша контента.
	ContentCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voxline",
		Name:      "content_cache_requests_total",
		Help:      "Content cache lookups by result (hit/miss/error).",
	}, []string{"result"})
)
