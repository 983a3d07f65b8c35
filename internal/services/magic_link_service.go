package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

// MagicLinkService implements passwordless login through a signed,
// single-use link sent by email.
type MagicLinkService struct {
	users       UserRepository
	tokens      OneTimeTokenRepository
	links       *linkIssuer
	sessions    SessionIssuer
	channel     NotificationChannel
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger

	baseURL        string
	expiry         time.Duration
	storageTimeout time.Duration
}

// NewMagicLinkService creates a new MagicLinkService
func NewMagicLinkService(
	users UserRepository,
	tokens OneTimeTokenRepository,
	sessions SessionIssuer,
	channel NotificationChannel,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	baseURL string,
	expiry, storageTimeout time.Duration,
) *MagicLinkService {
	return &MagicLinkService{
		users:          users,
		tokens:         tokens,
		links:          &linkIssuer{tm: tm, tokens: tokens, storageTimeout: storageTimeout},
		sessions:       sessions,
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

// RequestLink sends a login link if email belongs to an active account.
// The caller cannot tell whether anything was sent: the only error
// returned is a transient failure of the account lookup, which happens
// before the address is known to exist.
func (s *MagicLinkService) RequestLink(ctx context.Context, email string) error {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start, false)

	email = normalizeEmail(email)

	user, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storageFailure(s.logger, "failed to look up account for magic link", err)
	}

	if user == nil || !user.IsActive() {
		s.links.dummy(models.PurposeMagicLink, s.expiry)
		s.logger.Info("magic link requested for unknown or inactive account",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		return nil
	}

	token, expiresAt, err := s.links.issue(ctx, models.PurposeMagicLink, user.ID, s.expiry)
	if err != nil {
		// Unknown addresses never reach storage here, so failing the request
		// would reveal that this one is registered.
		s.logger.Error("failed to issue magic link", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	link := buildLink(s.baseURL, "/auth/magic-link", token)
	if err := s.channel.SendMagicLink(sendCtx, user.Email, link, expiresAt); err != nil {
		s.logger.Error("failed to deliver magic link", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	s.logger.Info("magic link sent", slog.String("user_id", user.ID))
	return nil
}

// Consume redeems a magic link token for a new session.
func (s *MagicLinkService) Consume(ctx context.Context, token string) (*models.TokenPair, error) {
	claims, err := s.tm.ParseLinkToken(models.PurposeMagicLink, token)
	if err != nil {
		s.logger.Info("magic link rejected", slog.Any("error", err))
		return nil, err
	}

	userID, err := bounded(ctx, s.storageTimeout, func(ctx context.Context) (string, error) {
		return s.tokens.Consume(ctx, claims.ID, models.PurposeMagicLink)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenAlreadyUsed):
			s.logger.Warn("magic link reuse", slog.String("user_id", claims.Subject))
			s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     "login_magic_link_failed",
				UserID:        claims.Subject,
				FailureReason: "token_already_used",
			})
			return nil, err
		case errors.Is(err, models.ErrTokenExpired), errors.Is(err, models.ErrInvalidToken):
			return nil, err
		}
		return nil, storageFailure(s.logger, "failed to consume magic link", err)
	}

	user, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to load account for magic link", err, slog.String("user_id", userID))
	}

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
		Metadata:  map[string]string{"method": "magic_link"},
	})

	return pair, nil
}
