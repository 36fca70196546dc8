// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/markb/cloudtune/internal/adapter"
	"github.com/markb/cloudtune/internal/log"
	"github.com/markb/cloudtune/internal/stream"
	"golang.org/x/crypto/acme/autocert"
)

// Server ties the backend adapters, the range proxy, and the HTTP routes
// together. One instance serves every backend kind.
type Server struct {
	router   *chi.Mux
	adapters map[adapter.Kind]adapter.Adapter
	proxy    *stream.Proxy

	// Secret for signed stream URLs
	jwtSecret string

	// HTTP server for graceful shutdown
	httpServer *http.Server

	// HTTPS fields
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// Config holds server configuration.
type Config struct {
	JWTSecret string
}

// New creates a server with every backend adapter registered.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		proxy:     stream.New(nil),
		jwtSecret: cfg.JWTSecret,
		adapters:  make(map[adapter.Kind]adapter.Adapter),
	}

	for _, a := range []adapter.Adapter{
		adapter.NewLocal(),
		adapter.NewWebDAV(),
		adapter.NewGoogleDrive(),
		adapter.NewOneDrive(),
		adapter.NewDropbox(),
		adapter.NewS3(),
		adapter.NewCloud189(),
		adapter.NewAList(),
	} {
		s.adapters[a.Kind()] = a
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based players. Range and the response
	// framing headers must be visible to fetch() and <audio>.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Range", "Accept-Ranges", "Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/backends", s.handleBackends)

	s.router.Route("/api/{backend}", func(r chi.Router) {
		r.Post("/connect", s.handleConnect)
		r.Get("/list", s.handleList)
		r.Get("/stream", s.handleStream)
		r.Head("/stream", s.handleStream)
		r.Post("/sign", s.handleSign)
		r.Post("/disconnect", s.handleDisconnect)
	})
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
}

// handleBackends lists the registered backend kinds so a client can render
// its connect dialog without hardcoding them.
func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"backends": adapter.Kinds(),
	})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops all running listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS server: %w", err))
		}
	}

	if s.httpRedirect != nil {
		if err := s.httpRedirect.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP redirect server: %w", err))
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
