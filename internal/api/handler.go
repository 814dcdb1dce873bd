// Package api provides the HTTP API handlers and routing for the worker daemon.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"driverd/internal/apperrors"
	"driverd/internal/driver"
	"driverd/internal/health"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the drivers API
type Handler struct {
	svc    *driver.Service
	health *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(svc *driver.Service, healthChecker *health.Checker) *Handler {
	return &Handler{
		svc:    svc,
		health: healthChecker,
	}
}

// SubmitDriver handles POST /v1/drivers
func (h *Handler) SubmitDriver(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var desc driver.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Submit(r.Context(), &desc)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, resp)
}

// ListDrivers handles GET /v1/drivers
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetDriver handles GET /v1/drivers/{driverId}
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	driverID := r.PathValue("driverId")
	if driverID == "" {
		h.writeError(w, http.StatusBadRequest, "Driver ID is required")
		return
	}

	status, err := h.svc.Get(r.Context(), driverID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// KillDriver handles DELETE /v1/drivers/{driverId}.
// Termination is asynchronous; the response reports the state as of the
// request, the terminal state arrives through the notification.
func (h *Handler) KillDriver(w http.ResponseWriter, r *http.Request) {
	driverID := r.PathValue("driverId")
	if driverID == "" {
		h.writeError(w, http.StatusBadRequest, "Driver ID is required")
		return
	}

	if err := h.svc.Kill(r.Context(), driverID); err != nil {
		h.handleError(w, r, err)
		return
	}

	status, err := h.svc.Get(r.Context(), driverID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, status)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the worker can accept drivers.
// Returns 503 while shutting down or when the launch backend is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
