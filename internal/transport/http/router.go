package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veridoc/internal/platform/health"
	"veridoc/internal/platform/middleware"
)

// NewRouter wires the public endpoints with the middleware stack.
func NewRouter(docs *DocumentHandler, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	if healthHandler != nil {
		healthHandler.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/documents", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/", docs.handleIssue)
		r.Post("/verify", docs.handleVerify)
		r.Get("/{id}", docs.handleGet)
	})

	return r
}
