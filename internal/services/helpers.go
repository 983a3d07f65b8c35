package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/BradenHooton/cadence/internal/models"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// buildLink appends the token as a query parameter to baseURL+path.
func buildLink(baseURL, path, token string) string {
	return fmt.Sprintf("%s%s?token=%s", baseURL, path, url.QueryEscape(token))
}

// accountStatusError maps a non-active account to its taxonomy error.
func accountStatusError(user *models.User) error {
	return models.StatusError(user.Status)
}

// storageFailure logs an unexpected store error. Transient errors keep
// their identity so callers can answer 503; anything else becomes
// models.ErrInternalServer.
func storageFailure(logger *slog.Logger, msg string, err error, attrs ...any) error {
	logger.Error(msg, append(attrs, slog.Any("error", err))...)
	if errors.Is(err, models.ErrStorageUnavailable) {
		return err
	}
	return models.ErrInternalServer
}
