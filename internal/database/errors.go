package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Querier is the subset of pgx used by repositories.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		case "22P02": // invalid_text_representation, e.g. a malformed uuid
			return models.ErrBadRequest
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
		}
		switch pgErr.Code[:2] {
		case "08", "53", "57": // connection exception, insufficient resources, operator intervention
			return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
		}
		return err
	}

	if isTransient(err) {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return err
}

// isTransient reports whether err is a connectivity problem rather than a
// statement failure.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.runTx(ctx, fn, nil)
}

// txRetryBackoff is the pause before a transaction is attempted again.
var txRetryBackoff = 50 * time.Millisecond

// WithRetryableTransaction is WithTransaction for non-idempotent work. A
// transient failure is retried once when the first attempt is known to
// have rolled back: Begin failed, a statement failed, or COMMIT failed
// before reaching the server. A COMMIT with an unknown outcome is not
// repeated. Each attempt is bounded by attemptTimeout.
func (db *DB) WithRetryableTransaction(ctx context.Context, attemptTimeout time.Duration, fn func(ctx context.Context, tx pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(txRetryBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		var commitErr error
		err := db.runTx(attemptCtx, func(tx pgx.Tx) error {
			return fn(attemptCtx, tx)
		}, &commitErr)
		if !errors.Is(err, models.ErrStorageUnavailable) {
			return err
		}
		if commitErr != nil && !pgconn.SafeToRetry(commitErr) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// runTx returns the mapped error. When COMMIT itself fails and commitErr
// is non-nil, the raw commit error is stored there.
func (db *DB) runTx(ctx context.Context, fn func(pgx.Tx) error, commitErr *error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return MapPostgresError(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if commitErr != nil {
			*commitErr = err
		}
		return MapPostgresError(err)
	}
	return nil
}
