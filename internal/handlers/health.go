package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 3 * time.Second

// HealthCheck returns the health status of the application
// @Summary Health check
// @Description Returns the health of the durable cache tier and the Google Maps circuit breaker
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Health status"
// @Failure 503 {object} map[string]interface{} "Durable tier unavailable"
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   h.version,
	}
	code := http.StatusOK

	if h.durable != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status["durable_tier"] = h.durable.Name()
		if err := h.durable.Health(ctx); err != nil {
			status["status"] = "degraded"
			status["durable_status"] = "unhealthy"
			status["durable_error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status["durable_status"] = "healthy"
		}
	} else {
		status["durable_status"] = "not_configured"
	}

	// an open breaker degrades lookups but cached answers are still served
	if h.breaker != nil {
		status["google_maps_breaker"] = h.breaker.BreakerStats()
	}

	writeJSON(w, code, status)
}
