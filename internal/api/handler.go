package api

import (
	"log/slog"

	"github.com/shaiso/voxline/internal/pipeline"
	"github.com/shaiso/voxline/internal/provision"
	"github.com/shaiso/voxline/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	provisioner  *provision.Provisioner
	coordinator  *pipeline.Coordinator
	agentRepo    *repo.AgentRepo
	pipelineRepo *repo.PipelineRepo
	rollbackRepo *repo.RollbackRepo
	logger       *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Provisioner  *provision.Provisioner
	Coordinator  *pipeline.Coordinator
	AgentRepo    *repo.AgentRepo
	PipelineRepo *repo.PipelineRepo
	RollbackRepo *repo.RollbackRepo
	Logger       *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		provisioner:  cfg.Provisioner,
		coordinator:  cfg.Coordinator,
		agentRepo:    cfg.AgentRepo,
		pipelineRepo: cfg.PipelineRepo,
		rollbackRepo: cfg.RollbackRepo,
		logger:       cfg.Logger,
	}
}
