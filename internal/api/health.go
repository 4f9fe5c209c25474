package api

import "net/http"

const serviceVersion = "0.1.0"

// Root handles GET /: basic service information.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{
		"service": "convocore",
		"version": serviceVersion,
		"status":  "running",
	})
}

// Health handles GET /health: storage reachability plus the user count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	userCount, err := h.svc.Health(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "Health check failed", "error", err)
		h.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "unhealthy",
			"database": "sqlite",
			"error":    err.Error(),
		})
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"database":   "sqlite",
		"user_count": userCount,
	})
}
