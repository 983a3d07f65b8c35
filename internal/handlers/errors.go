package handlers

import (
	"errors"
	"net/http"

	"github.com/BradenHooton/cadence/internal/models"
	pkghttp "github.com/BradenHooton/cadence/pkg/http"
)

// errorMapping pairs a service error with its HTTP representation.
type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// serviceErrors is checked in order; more specific errors come first.
var serviceErrors = []errorMapping{
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"},
	{models.ErrAccountDisabled, http.StatusForbidden, "account_disabled", "Account is disabled"},
	{models.ErrAccountUnconfirmed, http.StatusForbidden, "account_unconfirmed", "Account is not confirmed"},
	{models.ErrSessionExpired, http.StatusUnauthorized, "session_expired", "Login session expired. Please log in again."},
	{models.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts", "Too many attempts. Please log in again."},
	{models.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "Token expired"},
	{models.ErrTokenAlreadyUsed, http.StatusConflict, "token_already_used", "Token has already been used"},
	{models.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid token"},
	{models.ErrSessionCompromised, http.StatusUnauthorized, "session_compromised", "Session revoked. Please log in again."},
	{models.ErrWeakPassword, http.StatusBadRequest, "weak_password", "Password does not meet strength requirements"},
	{models.ErrStorageUnavailable, http.StatusServiceUnavailable, "storage_unavailable", "Service temporarily unavailable. Please retry."},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "Resource not found"},
	{models.ErrConflict, http.StatusConflict, "conflict", "Resource already exists"},
	{models.ErrBadRequest, http.StatusBadRequest, "bad_request", "Invalid request"},
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Unauthorized"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden", "Forbidden"},
}

// WriteServiceError writes the JSON error response for err. Unknown errors
// become 500 without leaking their text.
func WriteServiceError(w http.ResponseWriter, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			pkghttp.WriteError(w, m.status, m.code, m.message)
			return
		}
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}
