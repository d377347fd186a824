package handlers

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds the backend probe behind /health/ready.
const readinessTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Can the volume backend be reached?
type HealthHandler struct {
	service string
	backend *VolumeBackend
}

// NewHealthHandler creates a new health handler.
//
// The backend parameter may be nil, in which case readiness checks return
// unhealthy status.
func NewHealthHandler(service string, backend *VolumeBackend) *HealthHandler {
	return &HealthHandler{service: service, backend: backend}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": h.service,
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK when the backend data path can be queried for capacity,
// 503 Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("volume backend not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	start := time.Now()
	if _, err := h.backend.Capacity(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"backend": h.backend.Name(),
		"latency": time.Since(start).String(),
	}))
}
