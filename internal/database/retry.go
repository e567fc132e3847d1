package database

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/observability"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds retries of transient store failures.
type RetryPolicy struct {
	Attempts        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries three times starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

// Retry runs fn, classifying its error, and retries with exponential backoff
// while the classified error is transient. Non-transient errors stop the loop
// immediately. The last classified error is returned once attempts run out,
// and an expired deadline is reported as transient.
func Retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		err = Classify(op, err)
		if !models.IsRetryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, wait time.Duration) {
		observability.StoreRetries.WithLabelValues(op).Inc()
		middleware.Logger.WarnContext(ctx, "retrying transient store failure",
			slog.String("operation", op),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	res, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(policy.Attempts),
		backoff.WithNotify(notify),
	)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return res, permanent.Err
	}
	// A deadline that expires while waiting comes back raw from backoff.
	return res, Classify(op, err)
}

// RetryExec is Retry for operations without a result.
func RetryExec(ctx context.Context, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
