// Package web provides the HTTP API for employee imports.
//
// Routes under /api require the principal headers (X-Entity-ID and
// X-User-Login) and, when configured, an API key. Health and metrics
// endpoints are public.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"

	"github.com/JonMunkholm/staffimport/internal/config"
	"github.com/JonMunkholm/staffimport/internal/core"
	mw "github.com/JonMunkholm/staffimport/internal/web/middleware"
)

// ReadyFunc reports whether the storage behind the service is reachable.
type ReadyFunc func(ctx context.Context) error

// Server is the HTTP server for the import API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
	ready   ReadyFunc
	store   limiter.Store
}

// Option configures a Server.
type Option func(*Server)

// WithReadyCheck sets the readiness probe used by /readyz.
func WithReadyCheck(fn ReadyFunc) Option {
	return func(s *Server) { s.ready = fn }
}

// WithRateLimitStore sets the store for request limits. Without it limits are
// kept in memory.
func WithRateLimitStore(store limiter.Store) Option {
	return func(s *Server) { s.store = store }
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = mw.NewMemoryStore(cfg.Redis.Namespace + ":ratelimit")
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.RequestMeta)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		if s.cfg.Rate.Enabled {
			r.Use(mw.RateLimit(mw.RateLimitConfig{
				Name:              "api",
				RequestsPerMinute: s.cfg.Rate.RequestsPerMinute,
				Store:             s.store,
			}))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/imports/template.xlsx", s.handleTemplate)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequirePrincipal)

			// Uploads and commits run the engine and get their own budget.
			runs := func(h http.HandlerFunc) http.Handler {
				if !s.cfg.Rate.Enabled {
					return h
				}
				return mw.RateLimit(mw.RateLimitConfig{
					Name:              "runs",
					RequestsPerMinute: s.cfg.Rate.UploadLimit,
					Store:             s.store,
				})(h)
			}

			r.Method(http.MethodPost, "/imports", runs(s.handleUpload))
			r.Get("/imports/{importID}", s.handleGetImport)
			r.Get("/imports/{importID}/preview", s.handleGetPreview)
			r.Method(http.MethodPost, "/imports/{importID}/preview", runs(s.handlePreview))
			r.Method(http.MethodPost, "/imports/{importID}/commit", runs(s.handleCommit))
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
