// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides which URL patterns map to
// which handler functions, what middleware runs where, and how the server
// stops gracefully.
//
// DEPENDENCY INJECTION FLOW:
// main.go opens the store and the image backend and passes them in as Deps.
// New builds the chain:
//
//	Store → UserService / RecipeService / AttributeService / AdminService → handlers
//
// All of it happens in one place (New / setupRoutes), the composition root.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/handler"
	"github.com/sakif/recipe-api/internal/middleware"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/repository"
	"github.com/sakif/recipe-api/internal/service"
	"github.com/sakif/recipe-api/internal/storage"
)

// Deps are the long-lived resources the server runs on. main owns them and
// closes them after Start returns.
type Deps struct {
	Store     repository.Store
	Images    storage.ImageStore
	Media     http.Handler // serves locally stored images; nil for remote backends
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	GitHub    *auth.GitHubProvider // nil disables GitHub sign-in
	Registry  *prometheus.Registry // nil creates a private registry
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	deps     Deps
	registry *prometheus.Registry
	logger   *slog.Logger
}

// New wires services and handlers onto a chi router.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Store == nil || deps.Images == nil || deps.Tokens == nil {
		return nil, errors.New("server: store, images and tokens are required")
	}
	if deps.Passwords == nil {
		deps.Passwords = auth.NewPasswordService()
	}

	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		deps:     deps,
		registry: reg,
		logger:   logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET           /healthz
//	GET           /metrics
//	GET           /media/*                         (local storage only)
//	POST          /user/create
//	POST          /user/token                      (rate limited)
//	GET           /user/github/login, /callback    (when configured)
//	GET, PATCH    /user/me                         (auth)
//	GET, POST     /recipe/recipes                  (auth)
//	GET, PATCH, PUT, DELETE /recipe/recipes/{id}   (auth)
//	POST          /recipe/recipes/{id}/upload-image (auth)
//	GET           /recipe/tags, /recipe/ingredients (auth)
//	PATCH, PUT, DELETE /recipe/tags/{id}, /recipe/ingredients/{id} (auth)
//	*             /admin/users[/{id}]              (auth + staff)
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside
// the logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() {
	r := s.router
	metrics := middleware.NewMetrics(s.registry)

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Handler)
	if len(s.config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// Set before any Route/Mount so sub-routers inherit them.
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// === Services ===
	store := s.deps.Store
	userService := service.NewUserService(store, s.deps.Tokens, s.deps.Passwords, s.logger)
	recipeService := service.NewRecipeService(store, s.deps.Images, s.logger)
	attributeService := service.NewAttributeService(store, s.logger)
	adminService := service.NewAdminService(store, userService, s.deps.Images, s.logger)

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(store, s.logger)
	userHandler := handler.NewUserHandler(userService, s.deps.GitHub, s.logger)
	recipeHandler := handler.NewRecipeHandler(recipeService, s.logger)
	tagHandler := handler.NewAttributeHandler(model.KindTag, attributeService, s.logger)
	ingredientHandler := handler.NewAttributeHandler(model.KindIngredient, attributeService, s.logger)
	adminHandler := handler.NewAdminHandler(adminService, s.logger)

	requireAuth := auth.RequireAuth(s.deps.Tokens, store, s.logger)

	r.Get("/healthz", healthHandler.HandleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	if s.deps.Media != nil {
		prefix := "/" + strings.Trim(s.config.Storage.MediaURL, "/") + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, s.deps.Media))
	}

	r.Route("/user", func(r chi.Router) {
		r.Post("/create", userHandler.HandleCreate)
		r.With(s.tokenRateLimit()).Post("/token", userHandler.HandleToken)

		if s.deps.GitHub != nil {
			r.Get("/github/login", userHandler.HandleGitHubLogin)
			r.Get("/github/callback", userHandler.HandleGitHubCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", userHandler.HandleMe)
			r.Patch("/me", userHandler.HandleUpdateMe)
			r.Put("/me", userHandler.HandleUpdateMe)
		})
	})

	r.Route("/recipe", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/recipes", recipeHandler.HandleList)
		r.Post("/recipes", recipeHandler.HandleCreate)
		r.Get("/recipes/{id}", recipeHandler.HandleGet)
		r.Patch("/recipes/{id}", recipeHandler.HandlePatch)
		r.Put("/recipes/{id}", recipeHandler.HandlePut)
		r.Delete("/recipes/{id}", recipeHandler.HandleDelete)
		r.Post("/recipes/{id}/upload-image", recipeHandler.HandleUploadImage)

		for path, h := range map[string]*handler.AttributeHandler{
			"/tags":        tagHandler,
			"/ingredients": ingredientHandler,
		} {
			r.Get(path, h.HandleList)
			r.Patch(path+"/{id}", h.HandlePatch)
			r.Put(path+"/{id}", h.HandlePut)
			r.Delete(path+"/{id}", h.HandleDelete)
		}
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(requireAuth, auth.RequireStaff)

		r.Get("/", adminHandler.HandleList)
		r.Post("/", adminHandler.HandleCreate)
		r.Get("/{id}", adminHandler.HandleGet)
		r.Patch("/{id}", adminHandler.HandleUpdate)
		r.Delete("/{id}", adminHandler.HandleDelete)
	})
}

// tokenRateLimit throttles POST /user/token per client IP. A zero limit
// disables it.
func (s *Server) tokenRateLimit() func(http.Handler) http.Handler {
	limit, window := s.config.Auth.RateLimit, s.config.Auth.RateWindow
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(handler.TooManyRequests),
	)
}

// Start serves until ctx is cancelled, then shuts down gracefully: new
// connections are refused and in-flight requests get ShutdownTimeout to
// finish.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Driver),
			slog.String("storage", s.config.Storage.Backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}
