package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/redis/go-redis/v9"
)

const pendingLoginPrefix = "pending_login"

// PendingLoginStore keeps PendingLogin records in Redis. Expiry is native
// (key TTL); the attempt counter is updated under WATCH/MULTI.
type PendingLoginStore struct {
	redis redis.UniversalClient
}

func NewPendingLoginStore(client redis.UniversalClient) *PendingLoginStore {
	return &PendingLoginStore{redis: client}
}

func (s *PendingLoginStore) key(sessionID string) string {
	return pendingLoginPrefix + ":" + sessionID
}

// Save stores the record until its ExpiresAt.
func (s *PendingLoginStore) Save(ctx context.Context, login *models.PendingLogin) error {
	ttl := time.Until(login.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pending login already expired")
	}

	data, err := json.Marshal(login)
	if err != nil {
		return fmt.Errorf("failed to encode pending login: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(login.SessionID), data, ttl).Err(); err != nil {
		return mapRedisError(err)
	}
	return nil
}

func (s *PendingLoginStore) Get(ctx context.Context, sessionID string) (*models.PendingLogin, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		return nil, mapRedisError(err)
	}
	return decodePendingLogin(sessionID, data)
}

func (s *PendingLoginStore) Delete(ctx context.Context, sessionID string) error {
	return mapRedisError(s.redis.Del(ctx, s.key(sessionID)).Err())
}

// Attempt checks a submitted code against the record atomically.
//
// matches reports whether the submitted code is correct. On a match the
// record is deleted and returned, so a code is accepted at most once. On a
// miss the attempt counter is incremented; reaching maxAttempts locks the
// record until its TTL elapses. Errors:
//   - models.ErrSessionExpired: unknown or expired session
//   - models.ErrTooManyAttempts: locked, or this miss reached the limit
//   - models.ErrInvalidCredentials: wrong code, attempts remain
func (s *PendingLoginStore) Attempt(
	ctx context.Context,
	sessionID string,
	maxAttempts int,
	matches func(*models.PendingLogin) bool,
) (*models.PendingLogin, error) {
	const maxRetries = 4
	key := s.key(sessionID)

	for i := 0; i < maxRetries; i++ {
		var result *models.PendingLogin

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingLogin(sessionID, data)
			if err != nil {
				return err
			}

			ttl := time.Until(record.ExpiresAt)
			if ttl <= 0 {
				_, _ = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return models.ErrSessionExpired
			}

			if record.Locked {
				return models.ErrTooManyAttempts
			}

			if matches(record) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				result = record
				return nil
			}

			record.Attempts++
			outcome := models.ErrInvalidCredentials
			if record.Attempts >= maxAttempts {
				record.Locked = true
				outcome = models.ErrTooManyAttempts
			}

			updated, err := json.Marshal(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			return outcome
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, models.ErrSessionExpired),
				errors.Is(err, models.ErrTooManyAttempts),
				errors.Is(err, models.ErrInvalidCredentials):
				return nil, err
			case errors.Is(err, redis.Nil):
				return nil, models.ErrSessionExpired
			}
			return nil, mapRedisError(err)
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: pending login contention", models.ErrStorageUnavailable)
}

func decodePendingLogin(sessionID string, data []byte) (*models.PendingLogin, error) {
	var record models.PendingLogin
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode pending login: %w", err)
	}
	record.SessionID = sessionID
	return &record, nil
}

// mapRedisError maps go-redis errors onto the model error taxonomy.
func mapRedisError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return models.ErrNotFound
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
}
