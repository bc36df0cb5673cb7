package jira

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daviddao/deskflow/internal/config"
)

func TestRetryPolicy_Do(t *testing.T) {
	boom := errors.New("boom")

	t.Run("stops at max attempts", func(t *testing.T) {
		n, err := fastRetry(4).Do(context.Background(), func(int) error { return boom })
		assert.Equal(t, 4, n)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("permanent error stops at once", func(t *testing.T) {
		n, err := fastRetry(4).Do(context.Background(), func(int) error { return permanent(boom) })
		assert.Equal(t, 1, n)
		assert.Equal(t, boom, err)
	})

	t.Run("success on second attempt", func(t *testing.T) {
		n, err := fastRetry(4).Do(context.Background(), func(attempt int) error {
			if attempt == 1 {
				return boom
			}
			return nil
		})
		assert.Equal(t, 2, n)
		assert.NoError(t, err)
	})

	t.Run("zero attempts still tries once", func(t *testing.T) {
		n, _ := RetryPolicy{Interval: time.Millisecond}.Do(context.Background(), func(int) error { return boom })
		assert.Equal(t, 1, n)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		policy := RetryPolicy{MaxAttempts: 3, Interval: time.Hour}
		n, err := policy.Do(ctx, func(int) error { return boom })
		assert.LessOrEqual(t, n, 1)
		assert.Error(t, err)
	})
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Jira.Retry.Interval = "250ms"
	cfg.Jira.Retry.Strategy = StrategyExponential

	p := RetryPolicyFromConfig(cfg)
	assert.Equal(t, RetryPolicy{MaxAttempts: 3, Interval: 250 * time.Millisecond, Strategy: StrategyExponential}, p)
	assert.Equal(t, RetryPolicy{MaxAttempts: 3, Interval: 2 * time.Second, Strategy: StrategyConstant}, DefaultRetryPolicy())
}

func TestNewClient_ZeroRetryUsesDefault(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), NewClient(Options{}, nil).retry)
	assert.Equal(t, fastRetry(2), NewClient(Options{Retry: fastRetry(2)}, nil).retry)
}
