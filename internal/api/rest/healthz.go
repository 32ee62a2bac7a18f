package rest

import (
	"net/http"
)

// Live handles GET /healthz/live - liveness probe (process is alive)
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /healthz/ready - readiness probe (both storage
// directories accept writes)
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Writable(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "storage_unwritable",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
