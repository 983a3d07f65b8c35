package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded goose migrations using a database/sql handle
// borrowed from the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Migrate applies migrations on the connection's pool.
func (db *DB) Migrate(ctx context.Context) error {
	return Migrate(ctx, db.Pool)
}

// ExpiryJobName is the pg_cron job scheduled by the migrations when the
// extension is available.
const ExpiryJobName = "cadence_expire_tokens"

// HasScheduledExpiry reports whether the database reclaims expired tokens
// on its own schedule.
func (db *DB) HasScheduledExpiry(ctx context.Context) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `SELECT to_regclass('cron.job') IS NOT NULL`).Scan(&exists)
	if err != nil || !exists {
		return false, MapPostgresError(err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cron.job WHERE jobname = $1 AND active)`,
		ExpiryJobName,
	).Scan(&exists)
	if err != nil {
		return false, MapPostgresError(err)
	}
	return exists, nil
}
