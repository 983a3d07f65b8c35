package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
)

type OneTimeTokenRepository struct {
	db *database.DB
}

func NewOneTimeTokenRepository(db *database.DB) *OneTimeTokenRepository {
	return &OneTimeTokenRepository{db: db}
}

// Create stores the server-side record of a signed link token.
func (r *OneTimeTokenRepository) Create(ctx context.Context, token *models.OneTimeToken) error {
	query := `
		INSERT INTO one_time_tokens (id, user_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.db.Pool.QueryRow(ctx, query, token.ID, token.UserID, token.Purpose, token.ExpiresAt).
		Scan(&token.CreatedAt)
	return database.MapPostgresError(err)
}

func (r *OneTimeTokenRepository) GetByID(ctx context.Context, id string) (*models.OneTimeToken, error) {
	return getOneTimeToken(ctx, r.db.Pool, id)
}

// Consume marks the token used and returns its account id. Exactly one of
// any number of concurrent callers succeeds.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, id, purpose string) (string, error) {
	return consumeOneTimeToken(ctx, r.db.Pool, id, purpose)
}

// DeleteExpired removes tokens past their expiry (call periodically)
func (r *OneTimeTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM one_time_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

func getOneTimeToken(ctx context.Context, q database.Querier, id string) (*models.OneTimeToken, error) {
	query := `
		SELECT id, user_id, purpose, expires_at, consumed_at, created_at
		FROM one_time_tokens WHERE id = $1
	`

	var t models.OneTimeToken
	err := q.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.UserID, &t.Purpose, &t.ExpiresAt, &t.ConsumedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// consumeOneTimeToken is a compare-and-swap on consumed_at. When no row is
// updated the token is classified as unknown, used or expired.
func consumeOneTimeToken(ctx context.Context, q database.Querier, id, purpose string) (string, error) {
	query := `
		UPDATE one_time_tokens SET consumed_at = NOW()
		WHERE id = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`

	var userID string
	err := q.QueryRow(ctx, query, id, purpose).Scan(&userID)
	if err == nil {
		return userID, nil
	}

	err = database.MapPostgresError(err)
	if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}

	existing, err := getOneTimeToken(ctx, q, id)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.ErrInvalidToken
	}
	if err != nil {
		return "", err
	}

	switch {
	case existing.Purpose != purpose:
		return "", models.ErrInvalidToken
	case existing.IsConsumed():
		return "", models.ErrTokenAlreadyUsed
	default:
		return "", models.ErrTokenExpired
	}
}
