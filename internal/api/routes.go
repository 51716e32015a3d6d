package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Agents
	mux.Handle("POST /api/v1/agents", chain(http.HandlerFunc(h.ProvisionAgent)))
	mux.Handle("GET /api/v1/agents", chain(http.HandlerFunc(h.ListAgents)))
	mux.Handle("GET /api/v1/agents/{id}", chain(http.HandlerFunc(h.GetAgent)))
	mux.Handle("DELETE /api/v1/agents/{id}", chain(http.HandlerFunc(h.DeleteAgent)))

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))

	// Rollbacks
	mux.Handle("GET /api/v1/rollbacks", chain(http.HandlerFunc(h.ListRollbacks)))
}
