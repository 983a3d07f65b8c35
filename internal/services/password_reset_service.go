package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkgauth "github.com/BradenHooton/cadence/pkg/auth"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// PasswordResetService implements the emailed password-reset flow
type PasswordResetService struct {
	users       UserRepository
	links       *linkIssuer
	hasher      PasswordHasher
	channel     NotificationChannel
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger

	baseURL        string
	expiry         time.Duration
	storageTimeout time.Duration
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	users UserRepository,
	tokens OneTimeTokenRepository,
	hasher PasswordHasher,
	channel NotificationChannel,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	baseURL string,
	expiry, storageTimeout time.Duration,
) *PasswordResetService {
	return &PasswordResetService{
		users:          users,
		links:          &linkIssuer{tm: tm, tokens: tokens, storageTimeout: storageTimeout},
		hasher:         hasher,
		channel:        channel,
		tm:             tm,
		timing:         timing,
		auditLogger:    auditLogger,
		logger:         logger,
		baseURL:        baseURL,
		expiry:         expiry,
		storageTimeout: storageTimeout,
	}
}

// RequestReset sends a reset link to any account that is not disabled.
// Like MagicLinkService.RequestLink, the outcome does not reveal whether
// the address is registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start, false)

	email = normalizeEmail(email)

	user, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storageFailure(s.logger, "failed to look up account for password reset", err)
	}

	if user == nil || user.Status == models.StatusDisabled {
		s.links.dummy(models.PurposePasswordReset, s.expiry)
		s.logger.Info("password reset requested for unknown or disabled account",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return nil
	}

	token, expiresAt, err := s.links.issue(ctx, models.PurposePasswordReset, user.ID, s.expiry)
	if err != nil {
		s.logger.Error("failed to issue password reset", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	link := buildLink(s.baseURL, "/auth/reset-password", token)
	if err := s.channel.SendPasswordReset(sendCtx, user.Email, link, expiresAt); err != nil {
		s.logger.Error("failed to deliver password reset", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	s.logger.Info("password reset sent", slog.String("user_id", user.ID))
	return nil
}

// Consume sets a new password. The token is consumed, the hash replaced and
// every session of the account revoked in one transaction. A weak password
// is rejected before the token is touched, so the link stays usable.
func (s *PasswordResetService) Consume(ctx context.Context, token, newPassword string) error {
	claims, err := s.tm.ParseLinkToken(models.PurposePasswordReset, token)
	if err != nil {
		s.logger.Info("password reset token rejected", slog.Any("error", err))
		return err
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", models.ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	userID, err := bounded(ctx, s.storageTimeout, func(ctx context.Context) (string, error) {
		return s.users.ResetPasswordWithToken(ctx, claims.ID, hash)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenAlreadyUsed):
			s.logger.Warn("password reset token reuse", slog.String("user_id", claims.Subject))
			s.auditLogger.LogPasswordChange(ctx, "password_reset", claims.Subject, false)
			return err
		case errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrInvalidToken):
			return err
		}
		return storageFailure(s.logger, "failed to reset password", err, slog.String("user_id", claims.Subject))
	}

	s.logger.Info("password reset", slog.String("user_id", userID))
	s.auditLogger.LogPasswordChange(ctx, "password_reset", userID, true)

	return nil
}
