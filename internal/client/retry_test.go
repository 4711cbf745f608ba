package client

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetryPolicyClassification(t *testing.T) {
	policy := DefaultRetryPolicy()

	transient := []error{
		fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
		fmt.Errorf("read: %w", syscall.ECONNRESET),
		errors.New("i/o timeout"),
		&StatusError{StatusCode: 500},
		&StatusError{StatusCode: 503, Message: "unavailable"},
	}
	for _, err := range transient {
		assert.True(t, policy.ShouldRetry(err, 1), "expected %v to be retryable", err)
	}

	permanent := []error{
		nil,
		&StatusError{StatusCode: 400, Message: "missing or invalid source_app"},
		&StatusError{StatusCode: 404},
		context.Canceled,
		errors.New("decode response: unexpected EOF"),
	}
	for _, err := range permanent {
		assert.False(t, policy.ShouldRetry(err, 1), "expected %v to be permanent", err)
	}

	assert.False(t, policy.ShouldRetry(&StatusError{StatusCode: 500}, 3), "no retry after max attempts")
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4))
	assert.Equal(t, 5*time.Second, policy.NextDelay(9))
}

func TestRetryPolicyExecute(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Execute(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &StatusError{StatusCode: 502}
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Execute(context.Background(), func() error {
			calls++
			return &StatusError{StatusCode: 400}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error when all fail", func(t *testing.T) {
		calls := 0
		err := fastPolicy(3).Execute(context.Background(), func() error {
			calls++
			return fmt.Errorf("attempt %d: %w", calls, syscall.ECONNREFUSED)
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "attempt 3")
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 1, MaxDelay: time.Hour}
		calls := 0
		err := policy.Execute(ctx, func() error {
			calls++
			cancel()
			return &StatusError{StatusCode: 503}
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("no retry runs once", func(t *testing.T) {
		calls := 0
		_ = NoRetry().Execute(context.Background(), func() error {
			calls++
			return &StatusError{StatusCode: 503}
		})
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicyExecuteOnceSkipsAmbiguousFailures(t *testing.T) {
	ambiguous := []error{
		fmt.Errorf("read: %w", syscall.ECONNRESET),
		errors.New("Post \"http://localhost:4000/events\": net/http: request canceled (Client.Timeout exceeded)"),
		errors.New("i/o timeout"),
	}
	for _, want := range ambiguous {
		calls := 0
		err := fastPolicy(3).ExecuteOnce(context.Background(), func() error {
			calls++
			return want
		})
		assert.Equal(t, want, err)
		assert.Equal(t, 1, calls, "expected %v to be attempted once", want)
	}

	for _, want := range []error{
		fmt.Errorf("dial: %w", syscall.ECONNREFUSED),
		&StatusError{StatusCode: 500, Message: "internal server error"},
	} {
		calls := 0
		err := fastPolicy(3).ExecuteOnce(context.Background(), func() error {
			calls++
			return want
		})
		assert.Equal(t, want, err)
		assert.Equal(t, 3, calls, "expected %v to be retried", want)
	}
}
