package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
)

const maxSubscriptionKeyLen = 128

// SubscriptionService manages artist and genre subscriptions
type SubscriptionService struct {
	repo           SubscriptionRepository
	logger         *slog.Logger
	storageTimeout time.Duration
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(repo SubscriptionRepository, logger *slog.Logger, storageTimeout time.Duration) *SubscriptionService {
	return &SubscriptionService{
		repo:           repo,
		logger:         logger,
		storageTimeout: storageTimeout,
	}
}

func normalizeArtistID(artistID string) (string, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" || len(artistID) > maxSubscriptionKeyLen {
		return "", fmt.Errorf("%w: invalid artist id", models.ErrBadRequest)
	}
	return artistID, nil
}

// NormalizeGenre lower-cases and trims a genre name so that "Jazz" and
// " jazz" refer to the same subscription.
func NormalizeGenre(genre string) (string, error) {
	genre = strings.ToLower(strings.TrimSpace(genre))
	if genre == "" || len(genre) > maxSubscriptionKeyLen {
		return "", fmt.Errorf("%w: invalid genre", models.ErrBadRequest)
	}
	return genre, nil
}

// SubscribeArtist is idempotent.
func (s *SubscriptionService) SubscribeArtist(ctx context.Context, userID, artistID string) error {
	artistID, err := normalizeArtistID(artistID)
	if err != nil {
		return err
	}

	if err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.repo.AddArtist(ctx, userID, artistID)
	}); err != nil {
		return storageFailure(s.logger, "failed to subscribe to artist", err, slog.String("user_id", userID))
	}
	return nil
}

// UnsubscribeArtist is idempotent.
func (s *SubscriptionService) UnsubscribeArtist(ctx context.Context, userID, artistID string) error {
	artistID, err := normalizeArtistID(artistID)
	if err != nil {
		return err
	}

	if err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.repo.RemoveArtist(ctx, userID, artistID)
	}); err != nil {
		return storageFailure(s.logger, "failed to unsubscribe from artist", err, slog.String("user_id", userID))
	}
	return nil
}

// SubscribeGenre is idempotent.
func (s *SubscriptionService) SubscribeGenre(ctx context.Context, userID, genre string) error {
	genre, err := NormalizeGenre(genre)
	if err != nil {
		return err
	}

	if err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.repo.AddGenre(ctx, userID, genre)
	}); err != nil {
		return storageFailure(s.logger, "failed to subscribe to genre", err, slog.String("user_id", userID))
	}
	return nil
}

// UnsubscribeGenre is idempotent.
func (s *SubscriptionService) UnsubscribeGenre(ctx context.Context, userID, genre string) error {
	genre, err := NormalizeGenre(genre)
	if err != nil {
		return err
	}

	if err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.repo.RemoveGenre(ctx, userID, genre)
	}); err != nil {
		return storageFailure(s.logger, "failed to unsubscribe from genre", err, slog.String("user_id", userID))
	}
	return nil
}

// List returns all of the user's subscriptions.
func (s *SubscriptionService) List(ctx context.Context, userID string) (*models.Subscriptions, error) {
	subs, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (*models.Subscriptions, error) {
		return s.repo.ListForUser(ctx, userID)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to list subscriptions", err, slog.String("user_id", userID))
	}
	return subs, nil
}
