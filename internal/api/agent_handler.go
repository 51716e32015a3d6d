package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/shaiso/voxline/internal/domain"
)

// ProvisionAgent запускает пайплайн создания агента.
// POST /api/v1/agents
//
// По умолчанию запуск фоновый: ответ 202 с pipeline_id для
// status-запросов. С ?wait=true запрос блокируется до терминального
// статуса и возвращает полный результат.
func (h *Handler) ProvisionAgent(w http.ResponseWriter, r *http.Request) {
	var req ProvisionAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		result, err := h.provisioner.Provision(r.Context(), req.ToDomain())
		if err != nil {
			BadRequest(w, err.Error())
			return
		}
		Created(w, ResultFromProvision(result))
		return
	}

	id, err := h.provisioner.ProvisionAsync(r.Context(), req.ToDomain())
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	JSON(w, http.StatusAccepted, DataResponse{Data: ProvisionAcceptedResponse{
		PipelineID: id,
		Status:     string(domain.StatusInitializing),
	}})
}

// GetAgent возвращает агента по ID.
// GET /api/v1/agents/{id}
func (h *Handler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid agent id")
		return
	}

	agent, err := h.agentRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "agent not found") {
		return
	}

	Success(w, AgentFromDomain(*agent))
}

// ListAgents возвращает агентов клиента.
// GET /api/v1/agents?tenant_id=...&limit=...
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		BadRequest(w, "tenant_id is required")
		return
	}

	agents, err := h.agentRepo.ListByTenant(r.Context(), tenantID, queryLimit(r, 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]AgentResponse, len(agents))
	for i, agent := range agents {
		result[i] = AgentFromDomain(agent)
	}

	List(w, result, len(result))
}

// DeleteAgent удаляет запись агента.
// DELETE /api/v1/agents/{id}
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid agent id")
		return
	}

	if err := h.agentRepo.Delete(r.Context(), id); HandleRepoError(w, h.logger, err, "agent not found") {
		return
	}

	NoContent(w)
}
