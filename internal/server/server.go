// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and
// routes, and decides:
//   - Which URL patterns map to which handler functions
//   - Which routes need a session
//   - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// cmd/server builds the infrastructure (store, session store, hasher,
// uploader, identity provider) from config and hands it over as Deps.
// New() then builds: services → handlers → routes.
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/ricebook/internal/auth"
	"github.com/sakif/ricebook/internal/handler"
	"github.com/sakif/ricebook/internal/middleware"
	"github.com/sakif/ricebook/internal/model"
	"github.com/sakif/ricebook/internal/monitoring"
	"github.com/sakif/ricebook/internal/repository"
	"github.com/sakif/ricebook/internal/service"
	"github.com/sakif/ricebook/internal/session"
	"github.com/sakif/ricebook/internal/upload"
)

// Config holds the HTTP-level settings.
type Config struct {
	Port                   int
	AllowedOrigins         []string
	Cookies                auth.CookieConfig
	StrictArticleOwnership bool
	OAuthSuccessURL        string
	OAuthFailureURL        string
}

// Deps are the infrastructure pieces the server runs on. Provider and States
// are optional; without them the Google routes are not registered.
type Deps struct {
	Store    repository.Store
	Sessions session.Store
	Hasher   auth.Hasher
	Uploader upload.Uploader
	Provider auth.AuthProvider
	States   *auth.StateTokens
	Metrics  *monitoring.Metrics
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store and the session store. When the server shuts
// down, Start closes both after in-flight requests have finished.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Sessions == nil || deps.Hasher == nil || deps.Uploader == nil {
		return nil, errors.New("server: store, sessions, hasher and uploader are required")
	}
	if (deps.Provider == nil) != (deps.States == nil) {
		return nil, errors.New("server: an identity provider needs state tokens and vice versa")
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// profileFields are served by the generic GET/PUT /{field} handlers. The
// avatar is read like the others but written through PUT /avatar.
var (
	readableFields = []model.ProfileField{
		model.FieldHeadline, model.FieldEmail, model.FieldZipcode, model.FieldPhone, model.FieldAvatar,
	}
	writableFields = []model.ProfileField{
		model.FieldHeadline, model.FieldEmail, model.FieldZipcode, model.FieldPhone,
	}
)

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	public:
//	  GET  /healthz, /metrics, /uploads/*
//	  POST /register, /login
//	  GET  /google/login, /google/callback          (when Google is configured)
//	  GET  /{field}/{user}, /following/{user}, /articles/{id}
//	session required:
//	  PUT  /logout
//	  GET  /{field}, /dob, /following, /articles
//	  PUT  /{field}, /avatar, /password, /following/{user}, /articles/{id}
//	  POST /article
//	  DELETE /following/{user}
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns a unique ID to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers
//  3. Logger and Metrics: see the final status, including recovered panics
//  4. Recoverer: turns panics into 500 instead of crashing
//  5. CORS: answers preflight requests before any route runs
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.deps.Metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Services and handlers ===
	// The handler never touches the store directly; the service never
	// touches HTTP.
	store := s.deps.Store
	authService := service.NewAuthService(store, s.deps.Sessions, s.deps.Hasher, s.deps.Metrics, s.logger)
	profileService := service.NewProfileService(store, s.deps.Hasher, s.deps.Uploader, s.logger)
	followingService := service.NewFollowingService(store, s.deps.Metrics, s.logger)
	articleService := service.NewArticleService(store, store, s.config.StrictArticleOwnership, s.deps.Metrics, s.logger)

	authHandler := handler.NewAuthHandler(authService, s.config.Cookies, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, s.logger)
	followingHandler := handler.NewFollowingHandler(followingService, s.logger)
	articleHandler := handler.NewArticleHandler(articleService, s.logger)

	// === Operational routes ===
	s.router.Get("/healthz", handler.HandleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler())
	}
	if disk, ok := s.deps.Uploader.(*upload.DiskUploader); ok {
		s.router.Handle(upload.URLPrefix+"*", disk.Handler())
	}

	// === Public routes ===
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)

	if s.deps.Provider != nil {
		oauthService := service.NewOAuthService(s.deps.Provider, store, s.deps.Sessions, s.deps.Metrics, s.logger)
		oauthHandler := handler.NewOAuthHandler(oauthService, s.deps.States, s.config.Cookies,
			s.config.OAuthSuccessURL, s.config.OAuthFailureURL, s.logger)
		s.router.Get("/google/login", oauthHandler.HandleLogin)
		s.router.Get("/google/callback", oauthHandler.HandleCallback)
	}

	for _, field := range readableFields {
		s.router.Get("/"+string(field)+"/{user}", profileHandler.HandleGet(field))
	}
	s.router.Get("/following/{user}", followingHandler.HandleGet)
	s.router.Get("/articles/{id}", articleHandler.HandleGet)

	// === Session routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authService))

		r.Put("/logout", authHandler.HandleLogout)

		for _, field := range readableFields {
			r.Get("/"+string(field), profileHandler.HandleGet(field))
		}
		for _, field := range writableFields {
			r.Put("/"+string(field), profileHandler.HandleSet(field))
		}
		r.Put("/avatar", profileHandler.HandleSetAvatar)
		r.Put("/password", profileHandler.HandleSetPassword)
		r.Get("/dob", profileHandler.HandleGetDOB)

		r.Get("/following", followingHandler.HandleGet)
		r.Put("/following/{user}", followingHandler.HandleFollow)
		r.Delete("/following/{user}", followingHandler.HandleUnfollow)

		r.Get("/articles", articleHandler.HandleFeed)
		r.Post("/article", articleHandler.HandleCreate)
		r.Put("/articles/{id}", articleHandler.HandleUpdate)
	})
}

// Close releases the session store and the store. Start calls it on the
// way out; callers that only use Handler close the server themselves.
func (s *Server) Close() error {
	var errs []error
	if err := s.deps.Sessions.Close(); err != nil {
		s.logger.Error("closing session store", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("server: closing session store: %w", err))
	}
	if err := s.deps.Store.Close(); err != nil {
		s.logger.Error("closing store", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("server: closing store: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the session store and the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
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
			slog.Bool("google", s.deps.Provider != nil),
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

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
