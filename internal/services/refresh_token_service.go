package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/auth"
	"github.com/BradenHooton/cadence/internal/models"
	pkglogger "github.com/BradenHooton/cadence/pkg/logger"
)

const refreshTokenBytes = 32

// RefreshTokenService issues, rotates and revokes refresh tokens and mints
// the access token that accompanies each one.
type RefreshTokenService struct {
	tokens         RefreshTokenRepository
	users          UserRepository
	tm             *auth.TokenManager
	auditLogger    *pkglogger.AuditLogger
	logger         *slog.Logger
	refreshExpiry  time.Duration
	storageTimeout time.Duration
}

// NewRefreshTokenService creates a new RefreshTokenService
func NewRefreshTokenService(
	tokens RefreshTokenRepository,
	users UserRepository,
	tm *auth.TokenManager,
	auditLogger *pkglogger.AuditLogger,
	logger *slog.Logger,
	refreshExpiry, storageTimeout time.Duration,
) *RefreshTokenService {
	return &RefreshTokenService{
		tokens:         tokens,
		users:          users,
		tm:             tm,
		auditLogger:    auditLogger,
		logger:         logger,
		refreshExpiry:  refreshExpiry,
		storageTimeout: storageTimeout,
	}
}

func generateRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *RefreshTokenService) pair(user *models.User, refreshToken string, refreshExpiresAt time.Time) (*models.TokenPair, error) {
	accessToken, err := s.tm.GenerateAccessToken(user)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.tm.AccessTokenExpiry().Seconds()),
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// Issue starts a new session chain for user and returns its first pair.
func (s *RefreshTokenService) Issue(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	plain, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	record, err := bounded(ctx, s.storageTimeout, func(ctx context.Context) (*models.RefreshToken, error) {
		return s.tokens.Create(ctx, &models.RefreshToken{
			UserID:    user.ID,
			TokenHash: hashRefreshToken(plain),
			ExpiresAt: time.Now().Add(s.refreshExpiry),
		})
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to store refresh token", err, slog.String("user_id", user.ID))
	}

	s.auditLogger.LogTokenEvent(ctx, "refresh_issued", user.ID, true, map[string]string{"family_id": record.FamilyID})

	return s.pair(user, plain, record.ExpiresAt)
}

// Rotate exchanges a valid refresh token for a new pair. The presented
// token is revoked and its successor inserted atomically.
//
// Presenting a token that is already revoked (rotated or logged out) is a
// replay: every unrevoked token of the account is revoked and
// models.ErrSessionCompromised is returned.
func (s *RefreshTokenService) Rotate(ctx context.Context, presented string) (*models.TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, models.ErrInvalidToken
	}

	successorPlain, err := generateRefreshToken()
	if err != nil {
		return nil, err
	}

	presentedHash := hashRefreshToken(presented)

	// The repository retries only attempts known to have rolled back; a
	// second try after a commit with an unknown outcome would look like a
	// replay.
	successor, err := s.tokens.Rotate(ctx, presentedHash, hashRefreshToken(successorPlain), time.Now().Add(s.refreshExpiry))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil, s.classifyRotationMiss(ctx, presentedHash)
		case errors.Is(err, models.ErrAccountDisabled), errors.Is(err, models.ErrAccountUnconfirmed):
			s.logger.Warn("refresh rejected for inactive account")
			return nil, err
		}
		return nil, storageFailure(s.logger, "failed to rotate refresh token", err)
	}

	user, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.User, error) {
		return s.users.GetByID(ctx, successor.UserID)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to load account for rotation", err, slog.String("user_id", successor.UserID))
	}

	if statusErr := accountStatusError(user); statusErr != nil {
		if err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
			return s.tokens.RevokeByID(ctx, successor.ID, models.RevokeReasonDisabled)
		}); err != nil {
			s.logger.Error("failed to revoke successor of inactive account", slog.String("user_id", user.ID), slog.Any("error", err))
		}
		return nil, statusErr
	}

	s.auditLogger.LogTokenEvent(ctx, "refresh_rotated", user.ID, true, map[string]string{"family_id": successor.FamilyID})

	return s.pair(user, successorPlain, successor.ExpiresAt)
}

func (s *RefreshTokenService) classifyRotationMiss(ctx context.Context, presentedHash string) error {
	existing, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.RefreshToken, error) {
		return s.tokens.GetByHash(ctx, presentedHash)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidToken
		}
		return storageFailure(s.logger, "failed to look up refresh token", err)
	}

	if existing.IsRevoked {
		revoked, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (int64, error) {
			return s.tokens.RevokeAllForUser(ctx, existing.UserID, models.RevokeReasonReplay)
		})
		if err != nil {
			return storageFailure(s.logger, "failed to revoke sessions after replay", err, slog.String("user_id", existing.UserID))
		}

		s.logger.Warn("refresh token replay detected",
			slog.String("user_id", existing.UserID),
			slog.String("family_id", existing.FamilyID),
			slog.Int64("revoked", revoked))
		s.auditLogger.LogTokenEvent(ctx, "refresh_replay", existing.UserID, false, map[string]string{
			"family_id": existing.FamilyID,
			"revoked":   fmt.Sprint(revoked),
		})
		return models.ErrSessionCompromised
	}

	return models.ErrTokenExpired
}

// Revoke logs out a single session. Unknown or already revoked tokens are
// accepted silently.
func (s *RefreshTokenService) Revoke(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil
	}

	token, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.RefreshToken, error) {
		token, _, err := s.tokens.Revoke(ctx, hashRefreshToken(presented), models.RevokeReasonLogout)
		return token, err
	})
	if err != nil {
		return storageFailure(s.logger, "failed to revoke refresh token", err)
	}

	if token != nil {
		s.auditLogger.LogTokenEvent(ctx, "refresh_revoked", token.UserID, true, map[string]string{"family_id": token.FamilyID})
	}

	return nil
}

// RevokeAll revokes every session of the account.
func (s *RefreshTokenService) RevokeAll(ctx context.Context, userID, reason string) (int64, error) {
	revoked, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (int64, error) {
		return s.tokens.RevokeAllForUser(ctx, userID, reason)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "failed to revoke sessions", err, slog.String("user_id", userID))
	}

	s.auditLogger.LogTokenEvent(ctx, "refresh_revoked_all", userID, true, map[string]string{
		"reason":  reason,
		"revoked": fmt.Sprint(revoked),
	})

	return revoked, nil
}

// ListActive returns the account's live sessions.
func (s *RefreshTokenService) ListActive(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	tokens, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) ([]*models.RefreshToken, error) {
		return s.tokens.ListActive(ctx, userID)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to list sessions", err, slog.String("user_id", userID))
	}
	return tokens, nil
}
