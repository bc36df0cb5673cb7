package jira

import (
	"context"
	"errors"
	"time"

	"github.com/lestrrat-go/backoff/v2"

	"github.com/daviddao/deskflow/internal/config"
)

// Retry strategies.
const (
	StrategyConstant    = "constant"
	StrategyExponential = "exponential"
)

// RetryPolicy bounds how often and how fast a call is retried.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration // delay between attempts; the floor for exponential
	Strategy    string
}

// DefaultRetryPolicy is three attempts two seconds apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Interval: 2 * time.Second, Strategy: StrategyConstant}
}

// RetryPolicyFromConfig converts the retry section of the config.
func RetryPolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Jira.Retry.MaxAttempts,
		Interval:    cfg.GetRetryInterval(),
		Strategy:    cfg.Jira.Retry.Strategy,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff() backoff.Policy {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}
	// The attempt counter in Do is authoritative; the controller only paces.
	retries := backoff.WithMaxRetries(p.attempts())

	if p.Strategy == StrategyExponential {
		return backoff.Exponential(
			backoff.WithMinInterval(interval),
			backoff.WithMaxInterval(interval*time.Duration(1<<uint(p.attempts()))),
			backoff.WithJitterFactor(0.1),
			retries,
		)
	}
	return backoff.Constant(backoff.WithInterval(interval), retries)
}

// permanentError stops Do without further attempts.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// Do calls fn until it returns nil, returns an error built with permanent,
// or the attempt budget is spent. It returns the number of attempts made and
// the last error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := p.backoff().Start(ctx)
	attempt := 0
	var err error
	for backoff.Continue(b) {
		attempt++
		err = fn(attempt)
		if err == nil {
			return attempt, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if attempt >= p.attempts() {
			break
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	return attempt, err
}
