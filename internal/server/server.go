// Package server wires the application together: database, services,
// handlers, webhooks, middleware, and routes. It is the composition root;
// main.go only loads config and calls New/Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/fredhq/companion/internal/auth"
	"github.com/fredhq/companion/internal/config"
	"github.com/fredhq/companion/internal/generation"
	"github.com/fredhq/companion/internal/handler"
	"github.com/fredhq/companion/internal/middleware"
	sqliteRepo "github.com/fredhq/companion/internal/repository/sqlite"
	"github.com/fredhq/companion/internal/service"
	"github.com/fredhq/companion/internal/webhook"
)

// Server owns the router and the resources that must be released on
// shutdown (today, the database).
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain:
//
//	sqlite.DB → services → handlers/webhooks → routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services, and nothing above the repository
// layer knows sqlite exists.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// setupRoutes configures middleware, services, and the route table.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                                → liveness probe
//	GET  /api/living-essay                       → recent versions + tidbits (auth)
//	POST /api/living-essay                       → submit sections (auth)
//	GET  /api/users/{externalID}                 → user lookup (auth)
//	GET  /api/users/{externalID}/tidbits         → top relevant tidbits (auth)
//	GET  /api/users/{externalID}/voice-chat-data → voice-session context (auth)
//	POST /api/webhooks/identity                  → identity provider events (signed)
//	POST /api/webhooks/voice                     → voice provider events
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Services. The sqlite.DB value implements every repository interface,
	// so it is passed wherever one is needed.
	userService := service.NewUserService(s.db, s.logger)
	essayService := service.NewEssayService(s.db, s.db, s.logger)
	tidbitService := service.NewTidbitService(s.db, s.db, s.logger)

	generator := generation.NewClient(generation.Config{
		APIURL:  s.config.Generation.APIURL,
		APIKey:  s.config.Generation.APIKey,
		Model:   s.config.Generation.Model,
		Timeout: s.config.Generation.Timeout,
	})
	generationService := service.NewGenerationService(s.db, s.db, s.db, generator, s.logger)
	callService := service.NewCallService(s.db, s.db, generationService, s.logger)

	// Webhook routes are public; each verifies its own payload.
	voiceHandler := webhook.NewVoiceHandler(callService, s.logger)
	s.router.Post("/api/webhooks/voice", voiceHandler.HandleEvent)

	if s.config.Identity.WebhookSecret != "" {
		identityHandler, err := webhook.NewIdentityHandler(s.config.Identity.WebhookSecret, userService, s.logger)
		if err != nil {
			return fmt.Errorf("creating identity webhook handler: %w", err)
		}
		s.router.Post("/api/webhooks/identity", identityHandler.HandleEvent)
	} else {
		s.logger.Warn("IDENTITY_WEBHOOK_SECRET not set, identity webhook route disabled")
	}

	// Authenticated REST surface. Without a JWT secret there is no way to
	// validate callers, so the routes are not registered at all.
	if s.config.JWTSecret == "" {
		s.logger.Warn("JWT_SECRET not set, authenticated API routes disabled")
		return nil
	}

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	essayHandler := handler.NewEssayHandler(essayService, tidbitService, s.logger)
	userHandler := handler.NewUserHandler(userService, tidbitService, callService, tokens, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/living-essay", essayHandler.HandleGet)
		r.Post("/living-essay", essayHandler.HandleSubmit)

		r.Route("/users/{externalID}", func(r chi.Router) {
			r.Get("/", userHandler.HandleGet)
			r.Get("/tidbits", userHandler.HandleTidbits)
			r.Get("/voice-chat-data", userHandler.HandleVoiceChatData)
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests, close the
// database so the WAL is flushed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
