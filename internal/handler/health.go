package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	accounts HealthChecker
	identity HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
// Pass nil for either store if it is not yet initialized.
func NewHealthHandler(accounts, identity HealthChecker) *HealthHandler {
	return &HealthHandler{
		accounts: accounts,
		identity: identity,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe endpoint.
// It returns 200 if the server is running.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz is a readiness probe endpoint.
// It checks both stores and returns 200 only if all are healthy.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	healthy := true

	if h.accounts != nil {
		if err := h.accounts.Ping(ctx); err != nil {
			checks["accounts"] = "unavailable"
			healthy = false
		} else {
			checks["accounts"] = "ok"
		}
	}

	if h.identity != nil {
		if err := h.identity.Ping(ctx); err != nil {
			checks["identity"] = "unavailable"
			healthy = false
		} else {
			checks["identity"] = "ok"
		}
	}

	status := http.StatusOK
	response := HealthResponse{Status: "ok", Checks: checks}
	if !healthy {
		status = http.StatusServiceUnavailable
		response.Status = "degraded"
	}
	writeJSON(w, status, response)
}
