package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the route tree. Tenant scoping comes from the
// X-Tenant-ID header on every /api route.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Tenant-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireTenant)

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Delete("/{id}", h.DeleteCampaign)
			r.Post("/{id}/submit-review", h.SubmitForReview)
			r.Post("/{id}/approve", h.ApproveCampaign)
			r.Post("/{id}/reject", h.RejectCampaign)
			r.Post("/{id}/send", h.SendCampaign)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", h.GetJobStatus)
			r.Delete("/{id}", h.CancelJob)
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", h.ListProviders)
			r.Post("/", h.AddProvider)
			r.Put("/{id}", h.UpdateProvider)
			r.Delete("/{id}", h.RemoveProvider)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.AddSuppression)
			r.Delete("/{email}", h.RemoveSuppression)
		})

		r.Get("/worker/stats", h.WorkerStats)
	})

	return r
}
