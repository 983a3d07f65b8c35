package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing access-token claims in context
	UserContextKey contextKey = "user"
)

// UserRepository fetches the current state of an account.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware validates the bearer access token and injects its claims
// into the request context. Access tokens are not checked against storage;
// they live until expiry.
func AuthMiddleware(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				pkghttp.WriteUnauthorized(w, "missing authorization header")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				pkghttp.WriteUnauthorized(w, "invalid authorization header format")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, models.ErrTokenExpired) {
					pkghttp.WriteError(w, http.StatusUnauthorized, "token_expired", "access token expired")
					return
				}
				pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access. The role is re-read from storage
// so demotions and disables apply before the access token expires.
func RequireRole(userRepo UserRepository, role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "unauthorized")
				return
			}

			user, err := userRepo.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteUnauthorized(w, "unauthorized")
					return
				}
				if errors.Is(err, models.ErrStorageUnavailable) {
					pkghttp.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "service temporarily unavailable")
					return
				}
				logger.Error("role check failed", slog.String("user_id", claims.UserID), slog.String("error", err.Error()))
				pkghttp.WriteInternalError(w, "internal server error")
				return
			}

			if !user.IsActive() {
				pkghttp.WriteError(w, http.StatusForbidden, "account_disabled", "account is not active")
				return
			}

			if user.Role != role {
				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts access-token claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}
