package api

import (
	"net/http"

	"driverd/internal/driver"
	"driverd/internal/health"
	"driverd/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Drivers       *driver.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Drivers, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Driver endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/drivers", authMiddleware(http.HandlerFunc(handler.SubmitDriver)))
	mux.Handle("GET /v1/drivers", authMiddleware(http.HandlerFunc(handler.ListDrivers)))
	mux.Handle("GET /v1/drivers/{driverId}", authMiddleware(http.HandlerFunc(handler.GetDriver)))
	mux.Handle("DELETE /v1/drivers/{driverId}", authMiddleware(http.HandlerFunc(handler.KillDriver)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
