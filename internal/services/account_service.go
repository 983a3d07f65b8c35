package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkgauth "github.com/BradenHooton/cadence/pkg/auth"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
	"github.com/google/uuid"
)

// AccountConfig holds account lifecycle settings
type AccountConfig struct {
	BaseURL            string
	ConfirmationExpiry time.Duration
	StorageTimeout     time.Duration
}

// AccountService handles registration, confirmation and account
// management.
type AccountService struct {
	users       UserRepository
	links       *linkIssuer
	hasher      PasswordHasher
	channel     NotificationChannel
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	config      AccountConfig
}

// NewAccountService creates a new AccountService
func NewAccountService(
	users UserRepository,
	tokens OneTimeTokenRepository,
	hasher PasswordHasher,
	channel NotificationChannel,
	tm *auth.TokenManager,
	timing *auth.TimingDelay,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	config AccountConfig,
) *AccountService {
	return &AccountService{
		users:       users,
		links:       &linkIssuer{tm: tm, tokens: tokens, storageTimeout: config.StorageTimeout},
		hasher:      hasher,
		channel:     channel,
		tm:          tm,
		timing:      timing,
		auditLogger: auditLogger,
		logger:      logger,
		config:      config,
	}
}

// Register creates a PENDING_CONFIRMATION account and sends the
// confirmation link. A taken email or username returns models.ErrConflict;
// handlers must not surface that difference.
func (s *AccountService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	start := time.Now()

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := bounded(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.Create(ctx, &models.User{
			Email:        normalizeEmail(email),
			Username:     strings.TrimSpace(username),
			PasswordHash: hash,
			Role:         models.RoleUser,
			Status:       models.StatusPendingConfirmation,
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration for existing email or username",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			s.timing.WaitFrom(ctx, start, false)
			return nil, models.ErrConflict
		}
		return nil, storageFailure(s.logger, "failed to create account", err)
	}

	s.auditLogger.LogAccountAction(ctx, "account_registered", user.ID, nil)

	if err := s.sendConfirmation(ctx, user); err != nil {
		// The account exists; the user can ask for another link.
		s.logger.Error("failed to send confirmation", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return user, nil
}

func (s *AccountService) sendConfirmation(ctx context.Context, user *models.User) error {
	token, expiresAt, err := s.links.issue(ctx, models.PurposeAccountConfirmation, user.ID, s.config.ConfirmationExpiry)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	defer cancel()

	link := buildLink(s.config.BaseURL, "/auth/confirm", token)
	return s.channel.SendConfirmation(sendCtx, user.Email, link, expiresAt)
}

// ResendConfirmation sends a new confirmation link if email belongs to an
// account that is still pending. Like RequestLink it returns nil whether
// or not anything was sent.
func (s *AccountService) ResendConfirmation(ctx context.Context, email string) error {
	start := time.Now()
	defer s.timing.WaitFrom(ctx, start, false)

	email = normalizeEmail(email)

	user, err := retryValue(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByEmail(ctx, email)
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storageFailure(s.logger, "failed to look up account for confirmation", err)
	}

	if user == nil || user.Status != models.StatusPendingConfirmation {
		s.links.dummy(models.PurposeAccountConfirmation, s.config.ConfirmationExpiry)
		return nil
	}

	if err := s.sendConfirmation(ctx, user); err != nil {
		s.logger.Error("failed to resend confirmation", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return nil
}

// Confirm consumes a confirmation token and activates the account.
func (s *AccountService) Confirm(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tm.ParseLinkToken(models.PurposeAccountConfirmation, token)
	if err != nil {
		return nil, err
	}

	user, err := bounded(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.ActivateWithToken(ctx, claims.ID)
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTokenAlreadyUsed),
			errors.Is(err, models.ErrTokenExpired),
			errors.Is(err, models.ErrInvalidToken),
			errors.Is(err, models.ErrAccountDisabled):
			return nil, err
		}
		return nil, storageFailure(s.logger, "failed to confirm account", err, slog.String("user_id", claims.Subject))
	}

	s.logger.Info("account confirmed", slog.String("user_id", user.ID))
	s.auditLogger.LogAccountAction(ctx, "account_confirmed", user.ID, nil)

	return user, nil
}

// Me returns the account of an authenticated caller.
func (s *AccountService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := retryValue(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByID(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, storageFailure(s.logger, "failed to get account", err, slog.String("user_id", userID))
	}
	return user, nil
}

// ChangePassword replaces the password of an authenticated account after
// re-checking the current one. Every session is revoked, including the
// caller's.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Compare(user.PasswordHash, currentPassword) {
		s.auditLogger.LogPasswordChange(ctx, "password_change", userID, false)
		return models.ErrInvalidCredentials
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %v", models.ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := withRetry(ctx, s.config.StorageTimeout, func(ctx context.Context) error {
		return s.users.UpdatePasswordAndRevokeSessions(ctx, userID, hash, models.RevokeReasonPasswordChange)
	}); err != nil {
		return storageFailure(s.logger, "failed to change password", err, slog.String("user_id", userID))
	}

	s.logger.Info("password changed", slog.String("user_id", userID))
	s.auditLogger.LogPasswordChange(ctx, "password_change", userID, true)

	return nil
}

// isAccountID reports whether id can name an account at all; anything
// else is answered as not found without a query.
func isAccountID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// SetRole changes an account's role. actorID is the admin making the change.
func (s *AccountService) SetRole(ctx context.Context, actorID, userID, role string) (*models.User, error) {
	if !models.IsValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", models.ErrBadRequest, role)
	}
	if !isAccountID(userID) {
		return nil, models.ErrNotFound
	}

	user, err := retryValue(ctx, s.config.StorageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.UpdateRole(ctx, userID, role)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return nil, models.ErrNotFound
		}
		return nil, storageFailure(s.logger, "failed to update role", err, slog.String("user_id", userID))
	}

	s.auditLogger.LogAccountAction(ctx, "role_changed", userID, map[string]string{
		"actor_id": actorID,
		"role":     role,
	})

	return user, nil
}

// Disable soft-disables an account and revokes all of its sessions.
// Access tokens already issued stay valid until they expire.
func (s *AccountService) Disable(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return fmt.Errorf("%w: cannot disable own account", models.ErrBadRequest)
	}
	if !isAccountID(userID) {
		return models.ErrNotFound
	}

	revoked, err := retryValue(ctx, s.config.StorageTimeout, func(ctx context.Context) (int64, error) {
		return s.users.DisableAndRevokeSessions(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			return models.ErrNotFound
		}
		return storageFailure(s.logger, "failed to disable account", err, slog.String("user_id", userID))
	}

	s.logger.Info("account disabled", slog.String("user_id", userID), slog.Int64("revoked_sessions", revoked))
	s.auditLogger.LogAccountAction(ctx, "account_disabled", userID, map[string]string{
		"actor_id": actorID,
		"revoked":  fmt.Sprint(revoked),
	})

	return nil
}
