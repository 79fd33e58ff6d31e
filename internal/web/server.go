// Package web provides the HTTP server: the report store contract, the
// upload and query API, and the latest-report page.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/marketboard/internal/config"
	"github.com/JonMunkholm/marketboard/internal/core"
	"github.com/JonMunkholm/marketboard/internal/metrics"
	"github.com/JonMunkholm/marketboard/internal/store"
	mw "github.com/JonMunkholm/marketboard/internal/web/middleware"
)

// Server is the HTTP server for the market report application.
type Server struct {
	cfg     *config.Config
	repo    store.Repository
	metrics *metrics.Metrics
	parser  *core.Parser
	uploads *core.UploadLimiter

	latest    *cache.Cache
	loads     singleflight.Group
	latestMu  sync.Mutex
	latestGen uint64

	router *chi.Mux
	server *http.Server
}

// NewServer wires the router around repo. m must not be nil.
func NewServer(cfg *config.Config, repo store.Repository, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		repo:    repo,
		metrics: m,
		parser:  &core.Parser{MaxSize: cfg.Upload.MaxFileSize},
		uploads: core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
		latest:  cache.New(cfg.Report.CacheTTL, 2*cfg.Report.CacheTTL),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

func (s *Server) setupRoutes() {
	guard := s.writeGuard()

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/reports/latest", http.StatusFound)
	})
	s.router.Get("/reports/latest", s.handleReportPage)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	// Report store contract
	s.router.Route(storePrefix, func(r chi.Router) {
		r.Get("/", s.handleStoreLatest)
		r.Get("/all", s.handleStoreList)
		r.Group(func(r chi.Router) {
			r.Use(guard...)
			r.Post("/add", s.handleStoreAdd)
			r.Delete("/{id}", s.handleStoreDelete)
		})
	})

	s.router.Route("/api/reports", func(r chi.Router) {
		r.Get("/latest", s.handleLatestReport)
		r.Get("/latest/items", s.handleLatestItems)
		r.Get("/latest/summary", s.handleLatestSummary)
		r.With(guard...).Post("/upload", s.handleUpload)
	})
}

// writeGuard is the middleware chain for endpoints that create or delete
// records: API key check, then the stricter upload rate limit.
func (s *Server) writeGuard() []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{mw.APIKeyAuth(s.cfg.Security)}
	if s.cfg.Rate.Enabled {
		chain = append(chain, newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
	}
	return chain
}

// Start listens on the configured address until Shutdown.
// It returns http.ErrServerClosed after a clean shutdown, or at once if
// Shutdown already ran.
func (s *Server) Start() error {
	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections, then waits for in-flight uploads
// to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.uploads.WaitForDrain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain uploads (%d active): %w", s.uploads.ActiveCount(), err))
	}
	return errors.Join(errs...)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.repo.(store.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			respondError(w, r, fmt.Errorf("health: %w", err), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"uploads": s.uploads.Status(),
	})
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if s.cfg.Security.EnableCSP {
			h.Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		}
		next.ServeHTTP(w, r)
	})
}
