package routes

import (
	"log/slog"

	"github.com/croftbase/member-console/handlers"
	"github.com/croftbase/member-console/middleware"
	"github.com/croftbase/member-console/models"
	"github.com/croftbase/member-console/services"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/croftbase/member-console/docs" // swagger docs
)

// SetupRoutes mounts every handler with the middleware its group needs.
// Credential endpoints sit behind the strict limiter, reads behind the
// public one, and everything under /admin requires the admin role.
func SetupRoutes(
	router *chi.Mux,
	logger *slog.Logger,
	corsOrigins []string,
	sessions services.SessionService,
	authHandler *handlers.AuthHandler,
	oauthHandler *handlers.OAuthHandler,
	invitationHandler *handlers.InvitationHandler,
	userHandler *handlers.UserHandler,
	adminHandler *handlers.AdminHandler,
	flagHandler *handlers.FlagHandler,
	dashboardHandler *handlers.DashboardHandler,
	wsHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.Use(chiMiddleware.Recoverer)
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(sessions)

	router.Get("/healthz", healthHandler.Healthz)
	router.Handle("/swagger/*", httpSwagger.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.StrictLimit))

		r.Post("/auth/signup", authHandler.Signup)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/reset-password", authHandler.ResetPassword)
		r.Post("/invitations/{token}/accept", invitationHandler.Accept)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.PublicLimit))

		r.Post("/auth/verify-email", authHandler.VerifyEmail)
		r.Get("/auth/oauth", oauthHandler.Providers)
		r.Get("/auth/oauth/{provider}", oauthHandler.Begin)
		r.Get("/auth/oauth/{provider}/callback", oauthHandler.Callback)
		r.Get("/invitations/{token}", invitationHandler.Preview)
		r.Get("/flags", flagHandler.Evaluate)
		r.Get("/flags/{name}", flagHandler.EvaluateOne)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/auth/logout", authHandler.Logout)

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", userHandler.Me)
			r.Patch("/", userHandler.UpdateMe)
			r.Post("/avatar", userHandler.UploadAvatar)
			r.Delete("/avatar", userHandler.RemoveAvatar)
			r.Get("/preferences", userHandler.GetPreferences)
			r.Put("/preferences", userHandler.UpdatePreferences)
			r.Get("/sessions", userHandler.ListSessions)
			r.Delete("/sessions", userHandler.RevokeOtherSessions)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.RequireRole(models.RoleAdmin))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/stats", dashboardHandler.Stats)
			r.Get("/events", wsHandler.Events)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", adminHandler.ListUsers)
				r.Get("/{id}", adminHandler.GetUser)
				r.Delete("/{id}", adminHandler.DeleteUser)
				r.Patch("/{id}/role", adminHandler.SetRole)
				r.Post("/{id}/ban", adminHandler.Ban)
				r.Delete("/{id}/ban", adminHandler.Unban)
				r.Get("/{id}/sessions", adminHandler.ListSessions)
				r.Delete("/{id}/sessions", adminHandler.RevokeSessions)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", invitationHandler.List)
				r.Post("/", invitationHandler.Create)
				r.Delete("/{id}", invitationHandler.Revoke)
			})

			r.Route("/flags", func(r chi.Router) {
				r.Get("/", flagHandler.List)
				r.Post("/", flagHandler.Create)
				r.Patch("/{id}", flagHandler.Update)
				r.Post("/{id}/toggle", flagHandler.Toggle)
				r.Delete("/{id}", flagHandler.Delete)
			})
		})
	})
}
