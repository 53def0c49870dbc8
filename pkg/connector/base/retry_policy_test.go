package base

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxAttempts int) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

func TestExecuteSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhaustsBudget(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Execute(context.Background(), func() error {
		calls++
		return errors.New("always failing")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestExecuteWithConditionStopsOnPermanentFailure(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := fastPolicy(3).ExecuteWithCondition(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return false })

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   1.0,
	}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelayBackoffAndCap(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, policy.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.GetDelay(1))
	assert.Equal(t, 300*time.Millisecond, policy.GetDelay(2)) // capped
	assert.Equal(t, 300*time.Millisecond, policy.GetDelay(3))
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}

	for i := 0; i < 50; i++ {
		delay := policy.GetDelay(0)
		assert.GreaterOrEqual(t, delay, 75*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}

func TestNoRetryPolicy(t *testing.T) {
	calls := 0
	err := NoRetryPolicy().Execute(context.Background(), func() error {
		calls++
		return errors.New("failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
