package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"listing-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"dial tcp 10.0.0.1:26500: i/o timeout", true},
		{"rpc error: code = PermissionDenied", false},
		{"process not found", false},
	}
	for _, tt := range tests {
		t.Run(tt.err, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(errors.New(tt.err)))
		})
	}
}

func TestRetry(t *testing.T) {
	rc := &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	log := logger.NewTestLogger(t)

	calls := 0
	err := Retry(context.Background(), rc, log, "flaky", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), rc, log, "broken", func(context.Context) error {
		calls++
		return errors.New("permission denied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")

	calls = 0
	err = Retry(context.Background(), rc, log, "down", func(context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, &RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}, log, "cancelled", func(context.Context) error {
		return errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
