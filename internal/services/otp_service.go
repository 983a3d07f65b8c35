package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
	"github.com/google/uuid"
)

// SessionIssuer mints the token pair that ends a successful login
type SessionIssuer interface {
	Issue(ctx context.Context, user *models.User) (*models.TokenPair, error)
}

// OTPConfig holds one-time code settings
type OTPConfig struct {
	Expiry         time.Duration
	MaxAttempts    int
	StorageTimeout time.Duration
}

// OTPService is the second login factor: a short numeric code delivered
// out of band and bound to a PendingLogin.
type OTPService struct {
	store       PendingLoginStore
	users       UserRepository
	sessions    SessionIssuer
	channel     NotificationChannel
	generator   *auth.OTPGenerator
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	config      OTPConfig
}

// NewOTPService creates a new OTPService
func NewOTPService(
	store PendingLoginStore,
	users UserRepository,
	sessions SessionIssuer,
	channel NotificationChannel,
	generator *auth.OTPGenerator,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	config OTPConfig,
) *OTPService {
	return &OTPService{
		store:       store,
		users:       users,
		sessions:    sessions,
		channel:     channel,
		generator:   generator,
		auditLogger: auditLogger,
		logger:      logger,
		config:      config,
	}
}

// Issue creates a PendingLogin for a password-verified account and sends
// the code. The returned session id grants nothing on its own.
func (s *OTPService) Issue(ctx context.Context, user *models.User) (*models.PendingLoginResponse, error) {
	code, err := s.generator.Generate()
	if err != nil {
		s.logger.Error("failed to generate otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pending := &models.PendingLogin{
		SessionID: uuid.New().String(),
		UserID:    user.ID,
		CodeHash:  auth.HashOTP(code),
		ExpiresAt: time.Now().Add(s.config.Expiry),
	}

	if err := withRetry(ctx, s.config.StorageTimeout, func(ctx context.Context) error {
		return s.store.Save(ctx, pending)
	}); err != nil {
		return nil, storageFailure(s.logger, "failed to store pending login", err, slog.String("user_id", user.ID))
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	defer cancel()

	if err := s.channel.SendLoginCode(sendCtx, user.Email, code, pending.ExpiresAt); err != nil {
		s.logger.Error("failed to deliver login code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		if delErr := s.store.Delete(context.WithoutCancel(ctx), pending.SessionID); delErr != nil {
			s.logger.Warn("failed to discard undelivered pending login", slog.Any("error", delErr))
		}
		return nil, fmt.Errorf("%w: login code delivery failed", models.ErrStorageUnavailable)
	}

	s.logger.Info("login code issued", slog.String("user_id", user.ID))

	return &models.PendingLoginResponse{
		SessionID:    pending.SessionID,
		ExpiresAt:    pending.ExpiresAt,
		OTPDelivered: true,
	}, nil
}

// Verify checks code against the PendingLogin and, on success, consumes it
// and returns a fresh token pair.
func (s *OTPService) Verify(ctx context.Context, sessionID, code string) (*models.TokenPair, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, models.ErrSessionExpired
	}

	pending, err := bounded(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.PendingLogin, error) {
		return s.store.Attempt(ctx, sessionID, s.config.MaxAttempts, func(p *models.PendingLogin) bool {
			return auth.OTPMatches(p.CodeHash, code)
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidCredentials):
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "login_otp_failed", FailureReason: "invalid_code"})
			return nil, err
		case errors.Is(err, models.ErrTooManyAttempts):
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "login_otp_failed", FailureReason: "too_many_attempts"})
			return nil, err
		case errors.Is(err, models.ErrSessionExpired):
			return nil, err
		}
		return nil, storageFailure(s.logger, "failed to verify login code", err)
	}

	user, err := retryValue(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByID(ctx, pending.UserID)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to load account after otp", err, slog.String("user_id", pending.UserID))
	}

	// The account may have been disabled since the password step.
	if err := accountStatusError(user); err != nil {
		return nil, err
	}

	pair, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Success:   true,
		Metadata:  map[string]string{"method": "otp"},
	})

	return pair, nil
}
