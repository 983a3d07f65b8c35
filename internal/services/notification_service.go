package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
)

// Pagination limits for notification listing
const (
	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100
)

// NotificationService serves a user's in-app notifications and fans new
// ones out to subscribers.
type NotificationService struct {
	repo           NotificationRepository
	logger         *slog.Logger
	storageTimeout time.Duration
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(repo NotificationRepository, logger *slog.Logger, storageTimeout time.Duration) *NotificationService {
	return &NotificationService{
		repo:           repo,
		logger:         logger,
		storageTimeout: storageTimeout,
	}
}

// List returns a page of notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) ([]*models.Notification, error) {
		return s.repo.ListForUser(ctx, userID, limit, offset)
	})
	if err != nil {
		return nil, storageFailure(s.logger, "failed to list notifications", err, slog.String("user_id", userID))
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (int, error) {
		return s.repo.CountUnread(ctx, userID)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "failed to count notifications", err, slog.String("user_id", userID))
	}
	return count, nil
}

// MarkRead marks one of the user's notifications as read. Notifications of
// other users are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	err := withRetry(ctx, s.storageTimeout, func(ctx context.Context) error {
		return s.repo.MarkRead(ctx, userID, id)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return storageFailure(s.logger, "failed to mark notification read", err, slog.String("user_id", userID))
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	updated, err := retryValue(ctx, s.storageTimeout, func(ctx context.Context) (int64, error) {
		return s.repo.MarkAllRead(ctx, userID)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "failed to mark notifications read", err, slog.String("user_id", userID))
	}
	return updated, nil
}

func validateNotification(title, body string) (string, string, error) {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if title == "" || body == "" {
		return "", "", fmt.Errorf("%w: title and body are required", models.ErrBadRequest)
	}
	return title, body, nil
}

// PublishToArtistSubscribers creates one notification per subscriber of the
// artist and returns how many were created.
func (s *NotificationService) PublishToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error) {
	artistID, err := normalizeArtistID(artistID)
	if err != nil {
		return 0, err
	}
	title, body, err = validateNotification(title, body)
	if err != nil {
		return 0, err
	}

	// Not retried: a second insert would duplicate every notification.
	created, err := bounded(ctx, s.storageTimeout, func(ctx context.Context) (int64, error) {
		return s.repo.FanOutToArtistSubscribers(ctx, artistID, title, body)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "failed to publish artist notification", err, slog.String("artist_id", artistID))
	}

	s.logger.Info("artist notification published", slog.String("artist_id", artistID), slog.Int64("recipients", created))
	return created, nil
}

// PublishToGenreSubscribers is PublishToArtistSubscribers for a genre.
func (s *NotificationService) PublishToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error) {
	genre, err := NormalizeGenre(genre)
	if err != nil {
		return 0, err
	}
	title, body, err = validateNotification(title, body)
	if err != nil {
		return 0, err
	}

	created, err := bounded(ctx, s.storageTimeout, func(ctx context.Context) (int64, error) {
		return s.repo.FanOutToGenreSubscribers(ctx, genre, title, body)
	})
	if err != nil {
		return 0, storageFailure(s.logger, "failed to publish genre notification", err, slog.String("genre", genre))
	}

	s.logger.Info("genre notification published", slog.String("genre", genre), slog.Int64("recipients", created))
	return created, nil
}
