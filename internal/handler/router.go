package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"security-service/internal/metrics"
	"security-service/internal/ratelimit"
	"security-service/internal/util"
)

// HealthChecker reports per-dependency health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]string
}

// NewRouter creates the service router with all middleware and routes
func NewRouter(
	securityHandler *SecurityHandler,
	counter ratelimit.Checker,
	health HealthChecker,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.With(ratelimit.Middleware(counter, ratelimit.ProfileHealth)).
		Get("/health", healthHandler(health))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ratelimit.Middleware(counter, ratelimit.ProfileAPI))
		securityHandler.RegisterRoutes(api)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusNotFound, Response{
			Success: false,
			Error:   "not found",
			Message: "The requested resource does not exist",
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, Response{
			Success: false,
			Error:   "method not allowed",
			Message: "The requested method is not allowed for this resource",
		})
	})

	return r
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		if health != nil {
			checks = health.HealthCheck(ctx)
		}

		status := http.StatusOK
		overall := "healthy"
		for _, state := range checks {
			if state != "healthy" {
				status = http.StatusServiceUnavailable
				overall = "degraded"
				break
			}
		}

		respondJSON(w, status, map[string]interface{}{
			"status": overall,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// LoggerMiddleware logs each request with latency and status.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

			next.ServeHTTP(ww, req)

			logger.Info("HTTP request",
				util.String("method", req.Method),
				util.String("path", req.URL.Path),
				util.Int("status", ww.Status()),
				util.String("remote_addr", req.RemoteAddr),
				util.String("request_id", middleware.GetReqID(req.Context())),
				util.Duration("duration", time.Since(start)),
			)
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
