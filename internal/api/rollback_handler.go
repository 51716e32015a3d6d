package api

import (
	"net/http"
)

// ListRollbacks возвращает историю откатов клиента.
// GET /api/v1/rollbacks?tenant_id=...&limit=...
func (h *Handler) ListRollbacks(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		BadRequest(w, "tenant_id is required")
		return
	}

	entries, err := h.rollbackRepo.ListByTenant(r.Context(), tenantID, queryLimit(r, 50))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]RollbackEntryResponse, len(entries))
	for i, entry := range entries {
		result[i] = RollbackEntryFromDomain(entry)
	}

	List(w, result, len(result))
}
