package repositories

import (
	"context"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
)

type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// ListForUser returns the user's notifications, newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, title, body, artist_id, genre, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	notifications := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.ArtistID, &n.Genre, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return notifications, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// MarkRead marks one notification read. Only the owner may mark it.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND NOT is_read`,
		userID,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// FanOutToArtistSubscribers inserts one notification per subscriber of the artist.
func (r *NotificationRepository) FanOutToArtistSubscribers(ctx context.Context, artistID, title, body string) (int64, error) {
	query := `
		INSERT INTO notifications (user_id, title, body, artist_id)
		SELECT s.user_id, $2, $3, s.artist_id
		FROM artist_subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.artist_id = $1 AND u.status <> 'DISABLED'
	`

	result, err := r.db.Pool.Exec(ctx, query, artistID, title, body)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// FanOutToGenreSubscribers inserts one notification per subscriber of the genre.
func (r *NotificationRepository) FanOutToGenreSubscribers(ctx context.Context, genre, title, body string) (int64, error) {
	query := `
		INSERT INTO notifications (user_id, title, body, genre)
		SELECT s.user_id, $2, $3, s.genre
		FROM genre_subscriptions s
		JOIN users u ON u.id = s.user_id
		WHERE s.genre = $1 AND u.status <> 'DISABLED'
	`

	result, err := r.db.Pool.Exec(ctx, query, genre, title, body)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
