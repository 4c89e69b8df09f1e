package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wilketob/amztec-mcp-server/internal/auth"
	"github.com/wilketob/amztec-mcp-server/internal/metrics"
)

// ReadyChecker reports whether the gateway can reach its upstream
// dependencies. Used by the readiness endpoint.
type ReadyChecker func(ctx context.Context) error

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Dispatcher InvocationService
	Keyring    *auth.Keyring
	Metrics    *metrics.Metrics
	MCPHandler http.Handler
	Ready      ReadyChecker
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	tools := newToolsHandler(deps.Dispatcher)

	var authMetrics auth.MetricsRecorder
	if deps.Metrics != nil {
		authMetrics = deps.Metrics
	}
	requireKey := func(next http.Handler) http.Handler { return next }
	if deps.Keyring != nil && !deps.Keyring.Empty() {
		requireKey = auth.Middleware(deps.Keyring, authMetrics)
	}

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Readiness: verifies upstream reachability.
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	// Metrics endpoints.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
		r.Handle("/metrics/prometheus", deps.Metrics.PrometheusHandler())
	}

	// Tool invocation routes (caller-authed).
	r.Route("/v1", func(vr chi.Router) {
		vr.Use(requireKey)

		vr.Get("/tools", tools.ListTools)
		vr.Post("/tools/call", tools.CallTool)
	})

	// MCP transport (caller-authed).
	if deps.MCPHandler != nil {
		r.Route("/mcp", func(mr chi.Router) {
			mr.Use(requireKey)
			mr.Handle("/*", deps.MCPHandler)
			mr.Handle("/", deps.MCPHandler)
		})
	}

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
		)
	})
}

// metricsMiddleware records request counts and latency per route pattern.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.IncHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start).Seconds())
		})
	}
}
