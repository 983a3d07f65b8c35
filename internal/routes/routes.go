package routes

import (
	"log/slog"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/handlers"
	"github.com/BradenHooton/cadence/internal/middleware"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted under /api.
type Handlers struct {
	Auth          *handlers.AuthHandler
	Admin         *handlers.AdminHandler
	Subscriptions *handlers.SubscriptionHandler
	Notifications *handlers.NotificationHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	authLimit middleware.RateLimitConfig,
	userLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	// Credential-accepting endpoints share one per-IP budget.
	limited := middleware.RateLimitByIP(authLimit)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Get("/confirm", h.Auth.Confirm)
		r.With(limited).Post("/confirm/resend", h.Auth.ResendConfirmation)
		r.With(limited).Post("/login", h.Auth.Login)
		r.With(limited).Post("/verify-otp", h.Auth.VerifyOTP)
		r.With(limited).Post("/refresh", h.Auth.Refresh)
		r.Post("/logout", h.Auth.Logout)
		r.With(limited).Post("/magic-link", h.Auth.RequestMagicLink)
		r.Post("/magic-link/consume", h.Auth.ConsumeMagicLink)
		r.With(limited).Post("/password-reset", h.Auth.RequestPasswordReset)
		r.Post("/password-reset/consume", h.Auth.ConsumePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(tokenManager))
			r.Use(middleware.RateLimitByUserID(userLimit))
			r.Get("/me", h.Auth.Me)
			r.Get("/sessions", h.Auth.Sessions)
			r.Post("/logout-all", h.Auth.LogoutAll)
			r.Post("/change-password", h.Auth.ChangePassword)
		})
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByUserID(userLimit))

		h.Subscriptions.RegisterRoutes(r)
		h.Notifications.RegisterRoutes(r)

		// Admin-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(userRepo, models.RoleAdmin, logger))
			h.Admin.RegisterRoutes(r)
		})
	})
}
