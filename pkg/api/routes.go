package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.RateLimit.RequestsPerMinute))
			}

			r.Get("/stats/summary", s.handleStats)

			r.Get("/campaigns", s.handleListCampaigns)
			r.Get("/campaigns/{id}", s.handleGetCampaign)
			r.Get("/campaigns/{id}/tests", s.handleCampaignTests)

			r.Get("/tests", s.handleListTests)
			r.Get("/tests/{id}", s.handleGetTest)
			r.Get("/tests/{id}/results", s.handleTestResults)
			r.Get("/tests/{id}/logs", s.handleTestLogs)
			r.Get("/tests/{id}/failures", s.handleTestFailures)
			r.Get("/tests/{id}/artefacts", s.handleTestArtefacts)

			r.Get("/artefacts/{id}/content", s.handleArtefactContent)

			r.Get("/failures/common", s.handleCommonFailures)
			r.Get("/export/failures", s.handleExportFailures)

			r.Get("/processing-log", s.handleProcessingLog)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
