package routes_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/handlers"
	"github.com/BradenHooton/cadence/internal/middleware"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/BradenHooton/cadence/internal/routes"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[string]*models.User

func (s stubUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func newRouter(t *testing.T, users stubUsers, authLimit int) (http.Handler, *auth.TokenManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm := auth.NewTokenManager("routes-test-secret-0123456789", "routes-link-secret-0123456789", 15*time.Minute)

	accounts := &handlers.MockAccountService{
		MeFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return users.GetByID(ctx, userID)
		},
		DisableFunc: func(ctx context.Context, actorID, userID string) error { return nil },
	}
	notifications := &handlers.MockNotificationService{}

	h := routes.Handlers{
		Auth: handlers.NewAuthHandler(handlers.AuthServices{
			Credentials:   &handlers.MockCredentialService{},
			OTP:           &handlers.MockOTPService{},
			RefreshTokens: &handlers.MockRefreshTokenService{},
			MagicLinks:    &handlers.MockMagicLinkService{},
			PasswordReset: &handlers.MockPasswordResetService{},
			Accounts:      accounts,
		}, auth.CookieConfig{}, logger),
		Admin:         handlers.NewAdminHandler(accounts, notifications, logger),
		Subscriptions: handlers.NewSubscriptionHandler(&handlers.MockSubscriptionService{}),
		Notifications: handlers.NewNotificationHandler(notifications),
	}

	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, h, tm, users,
			middleware.RateLimitConfig{RequestsPerMinute: authLimit},
			middleware.RateLimitConfig{RequestsPerMinute: 1000},
			logger)
	})
	return router, tm
}

func bearer(t *testing.T, tm *auth.TokenManager, user *models.User) string {
	t.Helper()
	token, err := tm.GenerateAccessToken(user)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRoutes_BearerRequired(t *testing.T) {
	listener := &models.User{ID: "user-1", Email: "listener@example.com", Role: models.RoleUser, Status: models.StatusActive}
	router, tm := newRouter(t, stubUsers{"user-1": listener}, 100)

	for _, path := range []string{"/api/auth/me", "/api/subscriptions", "/api/notifications"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", bearer(t, tm, listener))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_AdminRequiresCurrentAdminRole(t *testing.T) {
	admin := &models.User{ID: "admin-1", Role: models.RoleAdmin, Status: models.StatusActive}
	demoted := &models.User{ID: "admin-2", Role: models.RoleUser, Status: models.StatusActive}
	router, tm := newRouter(t, stubUsers{"admin-1": admin, "admin-2": demoted}, 100)

	send := func(tokenUser *models.User) int {
		req := httptest.NewRequest("POST", "/api/admin/users/user-9/disable", nil)
		req.Header.Set("Authorization", bearer(t, tm, tokenUser))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusNoContent, send(admin))

	// The token still claims ADMIN but storage says otherwise.
	stale := *demoted
	stale.Role = models.RoleAdmin
	assert.Equal(t, http.StatusForbidden, send(&stale))
}

func TestRoutes_LoginIsRateLimited(t *testing.T) {
	router, _ := newRouter(t, stubUsers{}, 2)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := handlers.NewTestRequest(t, "POST", "/api/auth/login", handlers.LoginRequest{Identifier: "x", Password: "y"})
		req.RemoteAddr = "198.51.100.4:1000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}
