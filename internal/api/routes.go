package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", userHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes and metrics (no user required)
	r.Get("/health", h.health.HandleHealth)
	r.Get("/health/live", h.health.HandleLiveness)
	r.Get("/health/ready", h.health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/import", func(r chi.Router) {
			r.Get("/templates", h.ListTemplates)
			r.Get("/templates/{template}/sample.csv", h.SampleCSV)
			r.Post("/preview", h.CreatePreview)
			r.Get("/previews/{previewId}", h.GetPreview)
			r.Get("/previews/{previewId}/progress", h.GetProgress)
			r.Post("/previews/{previewId}/commit", h.CommitPreview)
			r.Get("/previews/{previewId}/skipped.csv", h.DownloadSkipped)
			r.Post("/sessions/{sessionId}/undo", h.UndoSession)
			r.Get("/history", h.History)
		})

		if h.wallet != nil {
			r.Get("/wallet/summary", h.WalletSummary)
			r.Get("/wallet/transactions", h.WalletTransactions)
			r.Post("/wallet/transactions", h.RecordTransaction)
		}
	})

	return r
}
