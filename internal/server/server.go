// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// It decides:
// - Which store backs the user repository (STORE_DRIVER)
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then:
//
//	OpenStore(cfg) → repository.UserRepository
//	Server.New() creates: TokenService, PasswordService, Validator, AuthMetrics
//	                      → AuthService → AuthHandler / HealthHandler
//
// This is the "composition root" pattern — all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/todo-auth/internal/auth"
	"github.com/sakif/todo-auth/internal/config"
	"github.com/sakif/todo-auth/internal/handler"
	"github.com/sakif/todo-auth/internal/metrics"
	"github.com/sakif/todo-auth/internal/middleware"
	"github.com/sakif/todo-auth/internal/repository"
	"github.com/sakif/todo-auth/internal/repository/memory"
	mongoRepo "github.com/sakif/todo-auth/internal/repository/mongo"
	"github.com/sakif/todo-auth/internal/repository/postgres"
	sqliteRepo "github.com/sakif/todo-auth/internal/repository/sqlite"
	"github.com/sakif/todo-auth/internal/service"
	"github.com/sakif/todo-auth/internal/validation"
)

const (
	serviceName     = "todo-auth"
	shutdownTimeout = 30 * time.Second
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the user store. When the server shuts down, the store is
// closed after in-flight requests finish (see Start).
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	store   repository.UserRepository
	metrics *metrics.AuthMetrics
}

// OpenStore connects the backend selected by cfg.StoreDriver.
//
// IMPORT ALIAS:
// repository/sqlite and repository/mongo are imported as sqliteRepo and
// mongoRepo to avoid confusion with the driver packages of the same name.
func OpenStore(ctx context.Context, cfg config.Config) (repository.UserRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			// Like `mkdir -p`. 0755 = owner rwx, others rx.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		store, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMongo:
		store, err := mongoRepo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		return memory.NewUserStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// New creates a Server around an open store. The Server takes ownership of
// store and closes it when Start returns; on error the caller still owns it.
//
// Each layer only receives what it needs:
// - Service gets the repository interface (not the concrete store)
// - Handler gets the service (not the repository)
func New(cfg config.Config, logger *slog.Logger, store repository.UserRepository) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /users/           → register (JSON)
// POST   /users/sign-in/   → sign in (JSON)
// POST   /users/sign-out/  → sign out (JSON)
// GET    /users/me/        → current user (JSON, session cookie required)
// GET    /healthz          → store reachability
// GET    /metrics          → Prometheus scrape endpoint
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Logger — logs each request with timing info, the request ID and the
//    resolved user; health and metric probes only at debug level
// 4. Recoverer — catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger, "/healthz", "/metrics"))
	s.router.Use(chimiddleware.Recoverer)

	tokens, err := auth.NewTokenService(auth.StaticSecret(s.config.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	passwords, err := auth.NewPasswordServiceWithCost(s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("creating password service: %w", err)
	}

	validator, err := validation.New(s.config.PhoneRegion)
	if err != nil {
		return fmt.Errorf("creating validator: %w", err)
	}

	cookies := auth.NewCookieTransport(s.config.CookieDomain, s.config.CookieSecure)

	// DEPENDENCY CHAIN:
	//   s.store → AuthService → AuthHandler
	// The handler never touches the store directly.
	// The service never touches HTTP.
	authService := service.NewAuthService(s.store, tokens, passwords, validator, s.metrics, s.logger, s.config.TokenTTL,
		service.WithHashPool(auth.NewHashPool(s.config.BcryptConcurrency)))
	authHandler := handler.NewAuthHandler(authService, cookies, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/users", func(r chi.Router) {
		r.Post("/", authHandler.HandleRegister)
		r.Post("/sign-in/", authHandler.HandleSignIn)
		r.Post("/sign-out/", authHandler.HandleSignOut)
		r.With(handler.RequireUser(authService, cookies)).Get("/me/", authHandler.HandleMe)
	})

	return nil
}

// Handler returns the router wrapped in OpenTelemetry instrumentation.
// With tracing disabled the global provider is a no-op.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, serviceName)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes SQLite WAL, returns pooled connections)
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("store", s.config.StoreDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
