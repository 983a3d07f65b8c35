package services

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/cadence/internal/models"
	"github.com/sethvargo/go-retry"
)

// retryBackoff is the pause before the single retry of a transient failure.
var retryBackoff = 50 * time.Millisecond

// retryValue runs op with each attempt bounded by timeout. An
// models.ErrStorageUnavailable failure is retried once; all other errors
// are returned as is. Only idempotent operations go through here.
func retryValue[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryBackoff))

	return retry.DoValue(ctx, backoff, func(ctx context.Context) (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := op(attemptCtx)
		if errors.Is(err, models.ErrStorageUnavailable) {
			return result, retry.RetryableError(err)
		}
		return result, err
	})
}

// withRetry is retryValue for operations without a result.
func withRetry(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	_, err := retryValue(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// bounded runs a non-idempotent op once under timeout.
func bounded[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(ctx)
}
