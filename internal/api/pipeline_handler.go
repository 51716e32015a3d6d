package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/pipeline"
)

// GetPipeline возвращает состояние запуска.
// GET /api/v1/pipelines/{id}
//
// Активный запуск отдаётся живым срезом из реестра координатора;
// завершённый — терминальной записью из Postgres.
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid pipeline id")
		return
	}

	snapshot, err := h.coordinator.PipelineStatus(id)
	if err == nil {
		Success(w, snapshot)
		return
	}
	if !errors.Is(err, pipeline.ErrPipelineNotActive) {
		InternalError(w, h.logger, err)
		return
	}

	run, err := h.pipelineRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineRunFromDomain(*run))
}

// ListPipelines возвращает запуски клиента.
// GET /api/v1/pipelines?tenant_id=...&limit=...
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		BadRequest(w, "tenant_id is required")
		return
	}

	runs, err := h.pipelineRepo.ListByTenant(r.Context(), tenantID, queryLimit(r, 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineRunResponse, len(runs))
	for i, run := range runs {
		result[i] = PipelineRunFromDomain(run)
	}

	List(w, result, len(result))
}

// queryLimit читает limit из query-параметров с значением по умолчанию.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
