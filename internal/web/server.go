package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/faceid/internal/config"
	"github.com/kozaktomas/faceid/internal/faceid"
	"github.com/kozaktomas/faceid/internal/web/handlers"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

// Dependencies are the collaborators the HTTP layer serves.
type Dependencies struct {
	Service     *faceid.Service
	Members     faceid.MemberDirectory
	LoginLimit  *middleware.IPRateLimiter
	ReadyChecks map[string]handlers.Pinger
	Logger      *slog.Logger
}

// Server represents the web server
type Server struct {
	config         *config.Config
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
	deps           Dependencies
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := chi.NewRouter()

	sessionManager := middleware.NewSessionManager(deps.Service.Sessions(), cfg.Web.CookieSecure)

	s := &Server{
		config:         cfg,
		router:         r,
		sessionManager: sessionManager,
		deps:           deps,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	trusted, err := middleware.ParseTrustedProxies(cfg.Web.TrustedProxies)
	if err != nil {
		deps.Logger.Warn("ignoring trusted proxies", "error", err)
		trusted = nil
	}
	r.Use(middleware.RealIP(trusted))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.deps.Logger.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
