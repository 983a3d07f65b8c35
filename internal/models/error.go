package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Authentication taxonomy. Handlers map each of these to a stable error code.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAccountUnconfirmed = errors.New("account is not confirmed")
	ErrSessionExpired     = errors.New("login session expired")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenAlreadyUsed   = errors.New("token already used")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionCompromised = errors.New("session compromised")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")

	// ErrStorageUnavailable is transient; callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
