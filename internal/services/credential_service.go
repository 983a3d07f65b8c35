package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// CredentialService verifies identifier + password pairs
type CredentialService struct {
	users          UserRepository
	hasher         PasswordHasher
	timing         *auth.TimingDelay
	auditLogger    *pkglogger.AuditLogger
	logger         *slog.Logger
	storageTimeout time.Duration
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(
	users UserRepository,
	hasher PasswordHasher,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	storageTimeout time.Duration,
) *CredentialService {
	return &CredentialService{
		users:          users,
		hasher:         hasher,
		timing:         timing,
		auditLogger:    auditLogger,
		logger:         logger,
		storageTimeout: storageTimeout,
	}
}

// VerifyPassword looks the account up by email (identifier contains "@")
// or username and checks the password.
//
// Unknown identifiers and wrong passwords both return
// models.ErrInvalidCredentials after the same amount of work. Account
// status is only revealed once the password has matched.
func (s *CredentialService) VerifyPassword(ctx context.Context, identifier, password string) (*models.User, error) {
	start := time.Now()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		s.hasher.CompareDummy(password)
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}

	user, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.User, error) {
		if strings.Contains(identifier, "@") {
			return s.users.GetByEmail(ctx, normalizeEmail(identifier))
		}
		return s.users.GetByUsername(ctx, identifier)
	})
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, storageFailure(s.logger, "failed to look up account", err)
		}

		s.hasher.CompareDummy(password)
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_password_failed",
			FailureReason: "invalid_credentials",
		})
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		s.logger.Info("login failed: invalid credentials")
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_password_failed",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
		})
		s.timing.WaitFrom(ctx, start, false)
		return nil, models.ErrInvalidCredentials
	}

	if err := accountStatusError(user); err != nil {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_password_failed",
			UserID:        user.ID,
			FailureReason: strings.ToLower(user.Status),
		})
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login_password_ok",
		UserID:    user.ID,
		Success:   true,
	})

	return user, nil
}
