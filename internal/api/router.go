// Package api exposes the assessment service over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/deal-intel/internal/assess"
)

// TenantHeader carries the tenant id on every /v1 request.
const TenantHeader = "X-Tenant-ID"

const maxBodyBytes = 8 << 20

// Options tunes the router.
type Options struct {
	AllowedOrigins []string
	// RequestTimeout bounds each request, including extraction. Zero disables it.
	RequestTimeout time.Duration
}

// Handler serves the HTTP API.
type Handler struct {
	svc *assess.Service
}

// NewRouter wires routes and middleware around svc.
func NewRouter(svc *assess.Service, opts Options) http.Handler {
	h := &Handler{svc: svc}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", TenantHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireTenant)
		r.Post("/score", h.score)
		r.Post("/deals/{dealID}/documents", h.assessDocument)
		r.Post("/deals/{dealID}/assessments", h.scorePayload)
		r.Get("/deals/{dealID}/assessments", h.history)
		r.Get("/deals/{dealID}/export.xlsx", h.exportXLSX)
		r.Get("/assessments/{assessmentID}", h.getAssessment)
	})

	return r
}
