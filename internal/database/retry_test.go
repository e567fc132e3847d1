package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"agora/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts uint) RetryPolicy {
	return RetryPolicy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastPolicy(3), "op", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("database is locked")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := RetryExec(context.Background(), fastPolicy(2), "op", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	assert.True(t, models.IsRetryable(err), "got %v", err)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentErrorsStopImmediately(t *testing.T) {
	calls := 0
	notFound := models.NewNotFoundError("User", "x")
	err := RetryExec(context.Background(), fastPolicy(5), "op", func(context.Context) error {
		calls++
		return notFound
	})
	assert.Equal(t, 1, calls)
	assert.Same(t, notFound, err)

	calls = 0
	partial := &models.PartialCascadeFailure{Pending: []string{"k"}}
	err = RetryExec(context.Background(), fastPolicy(1), "op", func(context.Context) error {
		calls++
		return partial
	})
	assert.Equal(t, 1, calls)
	var got *models.PartialCascadeFailure
	require.True(t, errors.As(err, &got))
	assert.Equal(t, []string{"k"}, got.Pending)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := RetryExec(ctx, RetryPolicy{Attempts: 5, InitialInterval: time.Second}, "op", func(context.Context) error {
		calls++
		return errors.New("database is locked")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestRetry_DeadlineIsTransient(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := RetryExec(ctx, fastPolicy(3), "op", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, models.IsRetryable(err), "got %v", err)
	assert.Equal(t, models.CodeTransient, models.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
