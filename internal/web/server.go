// Package web provides the HTTP API and pages of the bulk import flow.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/a7mdelbanna/classboom/internal/config"
	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/web/middleware"
)

// CreatorSource resolves the entity creator that commits one entity's records
// into one institution.
type CreatorSource interface {
	For(entity string, institutionID uuid.UUID) (core.EntityCreator, error)
}

// Server is the HTTP server for the import flow.
type Server struct {
	service  *core.Service
	creators CreatorSource
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server

	limiter       *rateLimiter
	uploadLimiter *rateLimiter
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, creators CreatorSource, cfg *config.Config) *Server {
	s := &Server{
		service:  service,
		creators: creators,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = newRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.uploadLimiter = newRateLimiter(cfg.Rate.UploadLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(s.securityHeaders)
	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.With(s.requestTimeout).
		Get("/import/{sessionID}/summary", s.handleImportSummary)

	s.router.Route("/api/import", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security))

		// Progress streams for as long as the commit runs.
		r.Get("/sessions/{sessionID}/progress", s.handleProgress)

		r.Group(func(r chi.Router) {
			r.Use(s.requestTimeout)

			r.Get("/schemas", s.handleListSchemas)
			r.Get("/sample/{entity}", s.handleSample)
			r.Get("/status", s.handleStatus)

			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions/{sessionID}", s.handleGetSession)
			r.Delete("/sessions/{sessionID}", s.handleCloseSession)
			r.Put("/sessions/{sessionID}/mappings", s.handleUpdateMapping)
			r.Post("/sessions/{sessionID}/preview", s.handlePreview)
			r.Post("/sessions/{sessionID}/cancel", s.handleCancelImport)
			r.Post("/sessions/{sessionID}/reset", s.handleReset)
			r.Get("/sessions/{sessionID}/result", s.handleResult)
			r.Get("/sessions/{sessionID}/errors.csv", s.handleErrorReport)

			// Uploads and commits are rate limited separately.
			r.Group(func(r chi.Router) {
				if s.uploadLimiter != nil {
					r.Use(s.uploadLimiter.middleware)
				}
				r.Post("/sessions/{sessionID}/upload", s.handleUpload)
				r.Post("/sessions/{sessionID}/import", s.handleStartImport)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps SSE streams open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	if s.uploadLimiter != nil {
		s.uploadLimiter.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestTimeout bounds non-streaming requests by Server.RequestTimeout.
func (s *Server) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.Server.RequestTimeout <= 0 {
		return next
	}
	return chimw.Timeout(s.cfg.Server.RequestTimeout)(next)
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		}
		next.ServeHTTP(w, r)
	})
}
