package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/database"
	"github.com/BradenHooton/cadence/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, username, password_hash, role, status, password_changed_at, created_at, updated_at`

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.Role, &user.Status, &user.PasswordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, username))
}

// Create inserts a new account. Duplicate email or username yields models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = models.StatusPendingConfirmation
	}

	query := `
		INSERT INTO users (id, email, username, password_hash, role, status, password_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash, user.Role, user.Status,
	))
}

func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) (*models.User, error) {
	query := `
		UPDATE users SET role = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query, role, id))
}

// ActivateWithToken consumes an account_confirmation token and activates its
// account in one transaction. A disabled account is never re-activated; the
// token stays unconsumed in that case.
func (r *UserRepository) ActivateWithToken(ctx context.Context, tokenID string) (*models.User, error) {
	var user *models.User

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		userID, err := consumeOneTimeToken(ctx, tx, tokenID, models.PurposeAccountConfirmation)
		if err != nil {
			return err
		}

		query := `
			UPDATE users SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status <> $3
			RETURNING ` + userColumns

		user, err = scanUserRow(tx.QueryRow(ctx, query, models.StatusActive, userID, models.StatusDisabled))
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrAccountDisabled
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// ResetPasswordWithToken consumes a password_reset token, replaces the
// password hash and revokes every refresh token of the account, atomically.
// The account row lock keeps a concurrent rotation from slipping a
// successor past the revoke.
func (r *UserRepository) ResetPasswordWithToken(ctx context.Context, tokenID, passwordHash string) (string, error) {
	var userID string

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		userID, err = consumeOneTimeToken(ctx, tx, tokenID, models.PurposePasswordReset)
		if err != nil {
			return err
		}

		if _, err := lockAccount(ctx, tx, userID, lockExclusive); err != nil {
			return err
		}

		if err := updatePassword(ctx, tx, userID, passwordHash); err != nil {
			return err
		}

		_, err = revokeAllForUser(ctx, tx, userID, models.RevokeReasonPasswordReset)
		return err
	})
	if err != nil {
		return "", err
	}

	return userID, nil
}

// UpdatePasswordAndRevokeSessions replaces the password hash and revokes all
// refresh tokens of the account in one transaction.
func (r *UserRepository) UpdatePasswordAndRevokeSessions(ctx context.Context, userID, passwordHash, reason string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, userID, lockExclusive); err != nil {
			return err
		}
		if err := updatePassword(ctx, tx, userID, passwordHash); err != nil {
			return err
		}
		_, err := revokeAllForUser(ctx, tx, userID, reason)
		return err
	})
}

// DisableAndRevokeSessions soft-disables the account and revokes all of its
// refresh tokens in one transaction.
func (r *UserRepository) DisableAndRevokeSessions(ctx context.Context, userID string) (int64, error) {
	var revoked int64

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := lockAccount(ctx, tx, userID, lockExclusive); err != nil {
			return err
		}

		_, err := tx.Exec(ctx,
			`UPDATE users SET status = $1, updated_at = NOW() WHERE id = $2`,
			models.StatusDisabled, userID,
		)
		if err != nil {
			return database.MapPostgresError(err)
		}

		revoked, err = revokeAllForUser(ctx, tx, userID, models.RevokeReasonDisabled)
		return err
	})
	if err != nil {
		return 0, err
	}

	return revoked, nil
}

func updatePassword(ctx context.Context, q database.Querier, userID, passwordHash string) error {
	now := time.Now()
	result, err := q.Exec(ctx,
		`UPDATE users SET password_hash = $1, password_changed_at = $2, updated_at = $2 WHERE id = $3`,
		passwordHash, now, userID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", models.ErrNotFound)
	}
	return nil
}
