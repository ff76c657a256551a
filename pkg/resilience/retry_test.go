package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Sleep: noSleep}, func(int) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var seen []int
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, Sleep: noSleep}, func(attempt int) error {
		seen = append(seen, attempt)
		return errBoom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		MaxAttempts:     3,
		Sleep:           noSleep,
		RetryableErrors: func(err error) bool { return !errors.Is(err, errBoom) },
	}
	err := Retry(context.Background(), policy, func(int) error {
		calls++
		return errBoom
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_BackoffPerError(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int, _ error) time.Duration {
			return ExponentialDelay(5*time.Second, attempt)
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	}

	_ = Retry(context.Background(), policy, func(int) error { return errBoom })

	// 最后一次失败后不等待
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, delays)
}

func TestRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Hour}

	go cancel()
	err := Retry(ctx, policy, func(int) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, p.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, p.calculateDelay(1))
	assert.Equal(t, 300*time.Millisecond, p.calculateDelay(2))
}
