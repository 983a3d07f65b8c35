package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const refreshTokenColumns = `id, user_id, token, family_id, parent_id, issued_at, expires_at, is_revoked, revoked_at, revoke_reason`

type RefreshTokenRepository struct {
	db        *database.DB
	txTimeout time.Duration
}

// NewRefreshTokenRepository creates the repository. txTimeout bounds the
// rotation transaction, which runs detached from request cancellation.
func NewRefreshTokenRepository(db *database.DB, txTimeout time.Duration) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db, txTimeout: txTimeout}
}

func scanRefreshToken(scanner rowScanner) (*models.RefreshToken, error) {
	var t models.RefreshToken

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.FamilyID, &t.ParentID,
		&t.IssuedAt, &t.ExpiresAt, &t.IsRevoked, &t.RevokedAt, &t.RevokeReason,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &t, nil
}

// Create persists a new refresh token. An empty FamilyID starts a new family.
func (r *RefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	return insertRefreshToken(ctx, r.db.Pool, token)
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token = $1`
	return scanRefreshToken(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// Rotate revokes the presented token and inserts its successor in a single
// transaction. If the presented token is not currently valid, no row is
// changed and models.ErrNotFound is returned; the caller classifies it.
//
// The account row is share-locked before the token row, the same order in
// which per-account revocation takes its exclusive lock, so a successor is
// either visible to a concurrent revoke-all or inserted after it has
// committed. A non-active account gets its presented token revoked, no
// successor, and its status error.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, tokenHash, successorHash string, expiresAt time.Time) (*models.RefreshToken, error) {
	var (
		successor *models.RefreshToken
		statusErr error
	)

	err := r.db.WithRetryableTransaction(context.WithoutCancel(ctx), r.txTimeout, func(ctx context.Context, tx pgx.Tx) error {
		successor, statusErr = nil, nil

		var userID string
		err := tx.QueryRow(ctx, `SELECT user_id FROM refresh_tokens WHERE token = $1`, tokenHash).Scan(&userID)
		if err != nil {
			return database.MapPostgresError(err)
		}

		status, err := lockAccount(ctx, tx, userID, lockShare)
		if err != nil {
			return err
		}

		reason := models.RevokeReasonRotated
		if status != models.StatusActive {
			reason = models.RevokeReasonDisabled
		}

		query := `
			UPDATE refresh_tokens
			SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2
			WHERE token = $1 AND NOT is_revoked AND expires_at > NOW()
			RETURNING ` + refreshTokenColumns

		current, err := scanRefreshToken(tx.QueryRow(ctx, query, tokenHash, reason))
		if err != nil {
			return err
		}

		if statusErr = models.StatusError(status); statusErr != nil {
			return nil
		}

		parentID := current.ID
		successor, err = insertRefreshToken(ctx, tx, &models.RefreshToken{
			UserID:    current.UserID,
			TokenHash: successorHash,
			FamilyID:  current.FamilyID,
			ParentID:  &parentID,
			ExpiresAt: expiresAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if statusErr != nil {
		return nil, statusErr
	}

	return successor, nil
}

// Revoke marks a single token revoked. Revoking an already revoked or unknown
// token is not an error; the returned bool reports whether a row changed.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash, reason string) (*models.RefreshToken, bool, error) {
	query := `
		UPDATE refresh_tokens
		SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2
		WHERE token = $1 AND NOT is_revoked
		RETURNING ` + refreshTokenColumns

	token, err := scanRefreshToken(r.db.Pool.QueryRow(ctx, query, tokenHash, reason))
	if errors.Is(err, models.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return token, true, nil
}

func (r *RefreshTokenRepository) RevokeByID(ctx context.Context, id, reason string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2 WHERE id = $1 AND NOT is_revoked`,
		id, reason,
	)
	return database.MapPostgresError(err)
}

// RevokeAllForUser revokes every unrevoked token of the account, including
// a successor a concurrent rotation is about to commit.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	var revoked int64

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, userID, lockExclusive); err != nil {
			return err
		}

		var err error
		revoked, err = revokeAllForUser(ctx, tx, userID, reason)
		return err
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

// ListActive returns the account's unrevoked, unexpired tokens, newest first.
func (r *RefreshTokenRepository) ListActive(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND NOT is_revoked AND expires_at > NOW()
		ORDER BY issued_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	defer rows.Close()

	tokens := make([]*models.RefreshToken, 0)
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, database.MapPostgresError(err)
	}

	return tokens, nil
}

// DeleteExpired removes tokens past their expiry (call periodically).
// Revoked tokens are kept until then so that replays stay detectable.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

func insertRefreshToken(ctx context.Context, q database.Querier, token *models.RefreshToken) (*models.RefreshToken, error) {
	token.ID = uuid.New().String()
	if token.FamilyID == "" {
		token.FamilyID = uuid.New().String()
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token, family_id, parent_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + refreshTokenColumns

	return scanRefreshToken(q.QueryRow(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.FamilyID, token.ParentID, token.ExpiresAt,
	))
}

const (
	lockShare     = "FOR SHARE"
	lockExclusive = "FOR UPDATE"
)

// lockAccount locks the account row and returns its status. Rotation takes
// it shared; every per-account revocation takes it exclusively before
// touching refresh_tokens.
func lockAccount(ctx context.Context, q database.Querier, userID, mode string) (string, error) {
	var status string
	err := q.QueryRow(ctx, `SELECT status FROM users WHERE id = $1 `+mode, userID).Scan(&status)
	if err != nil {
		return "", database.MapPostgresError(err)
	}
	return status, nil
}

// revokeAllForUser must run after lockAccount(..., lockExclusive) in the
// same transaction.
func revokeAllForUser(ctx context.Context, q database.Querier, userID, reason string) (int64, error) {
	result, err := q.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = TRUE, revoked_at = NOW(), revoke_reason = $2 WHERE user_id = $1 AND NOT is_revoked`,
		userID, reason,
	)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
