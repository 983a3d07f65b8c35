package repositories

import (
	"context"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
)

type SubscriptionRepository struct {
	db *database.DB
}

func NewSubscriptionRepository(db *database.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// AddArtist is idempotent: subscribing twice leaves one row.
func (r *SubscriptionRepository) AddArtist(ctx context.Context, userID, artistID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO artist_subscriptions (user_id, artist_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, artistID,
	)
	return database.MapPostgresError(err)
}

func (r *SubscriptionRepository) RemoveArtist(ctx context.Context, userID, artistID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM artist_subscriptions WHERE user_id = $1 AND artist_id = $2`,
		userID, artistID,
	)
	return database.MapPostgresError(err)
}

// AddGenre is idempotent: subscribing twice leaves one row.
func (r *SubscriptionRepository) AddGenre(ctx context.Context, userID, genre string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO genre_subscriptions (user_id, genre) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, genre,
	)
	return database.MapPostgresError(err)
}

func (r *SubscriptionRepository) RemoveGenre(ctx context.Context, userID, genre string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM genre_subscriptions WHERE user_id = $1 AND genre = $2`,
		userID, genre,
	)
	return database.MapPostgresError(err)
}

func (r *SubscriptionRepository) ListForUser(ctx context.Context, userID string) (*models.Subscriptions, error) {
	subs := &models.Subscriptions{
		Artists: make([]models.ArtistSubscription, 0),
		Genres:  make([]models.GenreSubscription, 0),
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT user_id, artist_id, created_at FROM artist_subscriptions WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	for rows.Next() {
		var s models.ArtistSubscription
		if err := rows.Scan(&s.UserID, &s.ArtistID, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, database.MapPostgresError(err)
		}
		subs.Artists = append(subs.Artists, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	rows, err = r.db.Pool.Query(ctx,
		`SELECT user_id, genre, created_at FROM genre_subscriptions WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var s models.GenreSubscription
		if err := rows.Scan(&s.UserID, &s.Genre, &s.CreatedAt); err != nil {
			return nil, database.MapPostgresError(err)
		}
		subs.Genres = append(subs.Genres, s)
	}
	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return subs, nil
}
