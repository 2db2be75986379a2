package main

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

	"github.com/croftbase/member-console/config"
	"github.com/croftbase/member-console/db"
	"github.com/croftbase/member-console/events"
	"github.com/croftbase/member-console/handlers"
	"github.com/croftbase/member-console/oauth"
	"github.com/croftbase/member-console/repositories"
	api "github.com/croftbase/member-console/routes"
	"github.com/croftbase/member-console/services"
	"github.com/croftbase/member-console/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
)

// sweepInterval controls how often expired verifications and sessions are
// purged.
const sweepInterval = time.Hour

//	@title						Member Console API
//	@version					1.0
//	@description				User management backend with invitations, OAuth sign-in, feature flags and an admin event feed.
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Session token, prefixed with "Bearer "
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn); err != nil {
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database schema up to date")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	mailer, err := services.NewEmailService(cfg)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}

	hub := events.NewHub(logger)
	go hub.Run()
	logger.Info("event hub started")

	providers := make(map[string]oauth.Provider)
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		discoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		google, err := oauth.NewGoogleProvider(
			discoverCtx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.PublicURL+"/auth/oauth/google/callback",
		)
		cancel()
		if err != nil {
			logger.Error("failed to initialize google oauth provider", slog.Any("error", err))
			os.Exit(1)
		}
		providers[google.Name()] = google
		logger.Info("oauth provider registered", slog.String("provider", google.Name()))
	}
	if cfg.GitHubClientID != "" && cfg.GitHubClientSecret != "" {
		github := oauth.NewGitHubProvider(
			cfg.GitHubClientID,
			cfg.GitHubClientSecret,
			cfg.PublicURL+"/auth/oauth/github/callback",
		)
		providers[github.Name()] = github
		logger.Info("oauth provider registered", slog.String("provider", github.Name()))
	}

	userRepo := repositories.NewPostgresUserRepository(dbConn)
	verificationRepo := repositories.NewPostgresVerificationRepository(dbConn)
	sessionRepo := repositories.NewPostgresSessionRepository(dbConn)
	accountRepo := repositories.NewPostgresAccountRepository(dbConn)
	preferenceRepo := repositories.NewPostgresPreferenceRepository(dbConn)
	flagRepo := repositories.NewPostgresFlagRepository(dbConn)
	logger.Info("repositories initialized")

	sessionService := services.NewSessionService(sessionRepo, userRepo, cfg.JWTSecretKey)
	authService := services.NewAuthService(userRepo, verificationRepo, preferenceRepo, sessionService, mailer, hub, logger)
	invitationService := services.NewInvitationService(verificationRepo, userRepo, preferenceRepo, sessionService, mailer, hub, logger)
	oauthService := services.NewOAuthService(providers, userRepo, accountRepo, verificationRepo, preferenceRepo, sessionService, mailer, hub, logger)
	userService := services.NewUserService(userRepo, preferenceRepo, uploader, hub, logger)
	adminService := services.NewAdminService(userRepo, sessionService, uploader, hub, logger)
	flagService := services.NewFlagService(flagRepo, hub)
	dashboardService := services.NewDashboardService(userRepo, sessionRepo, verificationRepo, flagRepo)
	logger.Info("services initialized")

	// Expired verification and session rows are dead weight; sweep them on
	// a ticker so invitation previews and the dashboard stay honest.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		logger.Info("expiry sweeper started", slog.Duration("interval", sweepInterval))

		sweep := func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			verifications, err := verificationRepo.DeleteExpired(ctx)
			if err != nil {
				logger.Error("sweeper: failed to delete expired verifications", slog.Any("error", err))
			}
			sessions, err := sessionRepo.DeleteExpired(ctx)
			if err != nil {
				logger.Error("sweeper: failed to delete expired sessions", slog.Any("error", err))
			}
			if verifications > 0 || sessions > 0 {
				logger.Info("sweeper: purged expired rows",
					slog.Int64("verifications", verifications),
					slog.Int64("sessions", sessions),
				)
			}
		}

		sweep()
		for range ticker.C {
			sweep()
		}
	}()

	authHandler := handlers.NewAuthHandler(authService, userService)
	oauthHandler := handlers.NewOAuthHandler(oauthService, cfg.PublicURL)
	invitationHandler := handlers.NewInvitationHandler(invitationService, userService)
	userHandler := handlers.NewUserHandler(userService, sessionService)
	adminHandler := handlers.NewAdminHandler(adminService)
	flagHandler := handlers.NewFlagHandler(flagService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	wsHandler := handlers.NewWebSocketHandler(hub, cfg.CORSOrigins, logger)
	healthHandler := handlers.NewHealthHandler(dbConn)
	logger.Info("HTTP handlers initialized")

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		logger,
		cfg.CORSOrigins,
		sessionService,
		authHandler,
		oauthHandler,
		invitationHandler,
		userHandler,
		adminHandler,
		flagHandler,
		dashboardHandler,
		wsHandler,
		healthHandler,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
