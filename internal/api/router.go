// Hearth - Household Management and Library Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hearth

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the HTTP routes.
//
// Route map:
//
//	GET    /api/v1/health
//	GET    /metrics
//	GET    /api/v1/library/credentials
//	POST   /api/v1/library/credentials
//	DELETE /api/v1/library/credentials/{id}
//	GET    /api/v1/library/books
//	POST   /api/v1/library/books/{itemID}/renew
//	POST   /api/v1/library/sync-now
//	POST   /api/v1/library/notify-now
//	GET    /api/v1/jobs
func NewRouter(handlers *Handlers, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	// Health gets its own permissive rate limit for uptime monitors.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(mw.RateLimitHealth())
		r.Get("/", handlers.Health)
	})

	// Prometheus scrape endpoint, unmetered.
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(PrometheusMetrics)

		r.Route("/library", func(r chi.Router) {
			r.Get("/credentials", handlers.ListCredentials)
			r.Post("/credentials", handlers.CreateCredential)
			r.Delete("/credentials/{id}", handlers.DeleteCredential)

			r.Get("/books", handlers.ListBooks)
			r.Post("/books/{itemID}/renew", handlers.RenewBook)

			r.Post("/sync-now", handlers.SyncNow)
			r.Post("/notify-now", handlers.NotifyNow)
		})

		r.Get("/jobs", handlers.Jobs)
	})

	return r
}
