package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, health *HealthChecker, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Binary", "cmd/server")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/dispatch", func(r chi.Router) {
			r.Post("/campaigns", h.SendCampaign)
			r.Post("/stop", h.Stop)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/retry-failed", h.RetryFailed)

			r.Get("/status", h.GetStatus)
			r.Get("/progress", h.GetProgress)
			r.Get("/progress/stream", h.stream.HandleSSE)
			r.Get("/statuses", h.GetSendStatuses)
			r.Get("/summary", h.GetSummary)

			r.Get("/saved", h.GetSavedCampaign)
			r.Delete("/saved", h.ClearSavedCampaign)
		})

		r.Get("/quota", h.GetQuota)
		r.Post("/quota/reset", h.ResetQuota)
	})

	return r
}
