package services

import (
	"context"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
)

// UserRepository defines the account storage operations used by the services
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateRole(ctx context.Context, id, role string) (*models.User, error)
	ActivateWithToken(ctx context.Context, tokenID string) (*models.User, error)
	ResetPasswordWithToken(ctx context.Context, tokenID, passwordHash string) (string, error)
	UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash, reason string) error
	DisableAndRevokeSessions(ctx context.Context, userID string) (int64, error)
}

// OneTimeTokenRepository stores the server side of signed link tokens
type OneTimeTokenRepository interface {
	Create(ctx context.Context, token *models.OneTimeToken) error
	Consume(ctx context.Context, id, purpose string) (string, error)
}

// RefreshTokenRepository defines refresh-token persistence
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Rotate(ctx context.Context, tokenHash, successorHash string, expiresAt time.Time) (*models.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash, reason string) (*models.RefreshToken, bool, error)
	RevokeByID(ctx context.Context, id, reason string) error
	RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error)
	ListActive(ctx context.Context, userID string) ([]*models.RefreshToken, error)
}

// PendingLoginStore holds the state between the password and OTP steps
type PendingLoginStore interface {
	Save(ctx context.Context, login *models.PendingLogin) error
	Attempt(ctx context.Context, sessionID string, maxAttempts int, matches func(*models.PendingLogin) bool) (*models.PendingLogin, error)
	Delete(ctx context.Context, sessionID string) error
}

// SubscriptionRepository defines subscription persistence
type SubscriptionRepository interface {
	AddArtist(ctx context.Context, userID, artistID string) error
	RemoveArtist(ctx context.Context, userID, artistID string) error
	AddGenre(ctx context.Context, userID, genre string) error
	RemoveGenre(ctx context.Context, userID, genre string) error
	ListForUser(ctx context.Context, userID string) (*models.Subscriptions, error)
}

// NotificationRepository defines in-app notification persistence
type NotificationRepository interface {
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	FanOutToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error)
	FanOutToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error)
}

// NotificationChannel delivers out-of-band messages (codes and links) to
// the account's email address.
type NotificationChannel interface {
	SendConfirmation(ctx context.Context, email, link string, expiresAt time.Time) error
	SendLoginCode(ctx context.Context, email, code string, expiresAt time.Time) error
	SendMagicLink(ctx context.Context, email, link string, expiresAt time.Time) error
	SendPasswordReset(ctx context.Context, email, link string, expiresAt time.Time) error
}

// PasswordHasher hashes and compares passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashedPassword, password string) bool
	CompareDummy(password string) bool
}
