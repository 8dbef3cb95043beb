/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions
  for the overtime engine. This is the wiring layer that connects URLs to
  handlers; domain logic lives in handlers.go and below.

ROUTER: chi - lightweight, context-based, middleware support, RESTful
  route patterns.

MIDDLEWARE STACK:
  1. Logger:     request logging
  2. Recoverer:  panic recovery (500 instead of crash)
  3. RequestID:  unique ID per request for tracing
  4. CORS:       cross-origin requests for admin/desktop clients

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", h.Hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/time-entries", func(r chi.Router) {
			r.Post("/", h.CreateTimeEntry)
			r.Get("/", h.ListTimeEntries)
		})

		r.Route("/absences", func(r chi.Router) {
			r.Post("/", h.CreateAbsence)
			r.Post("/{id}/decision", h.DecideAbsence)
			r.Post("/{id}/reset", h.ResetAbsence)
		})

		r.Route("/overtime-corrections", func(r chi.Router) {
			r.Post("/", h.CreateCorrection)
			r.Delete("/{id}", h.DeleteCorrection)
		})

		r.Get("/reports/overtime", h.OvertimeReport)

		r.Get("/users/{id}/vacation-balance", h.GetVacationBalance)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})
	})

	return r
}
