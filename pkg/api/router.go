package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/volumed/internal/logger"
	"github.com/marmos91/volumed/internal/telemetry"
	"github.com/marmos91/volumed/pkg/api/handlers"
)

// requestTimeout bounds every API request.
const requestTimeout = 30 * time.Second

// RouterConfig holds what the router needs to build its handlers.
type RouterConfig struct {
	Project string
	Version string
	Backend *handlers.VolumeBackend
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - A tracing span per request
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /v1/version - Service version
//   - GET /v1/stats - Volume backend stats
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(tracing)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(cfg.Project, cfg.Backend)
	volumeHandler := handlers.NewVolumeHandler(cfg.Backend, cfg.Project, cfg.Version)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", volumeHandler.Version)
		r.Get("/stats", volumeHandler.Stats)
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// tracing starts a server span per request and records the matched route
// and status once the handler returns.
func tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartHTTPSpan(r.Context(), r.Method, r.URL.Path,
			telemetry.RequestID(middleware.GetReqID(r.Context())),
			telemetry.ClientIP(r.RemoteAddr),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetAttributes(telemetry.HTTPRoute(pattern))
			}
		}
		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
	})
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.DebugCtx(r.Context(), "API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyRemoteAddr, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.InfoCtx(r.Context(), "API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
