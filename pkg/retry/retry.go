package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent marks err so that Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn until it succeeds, returns a Permanent error, the attempts
// are exhausted or ctx is done. onRetry, when set, is called before every
// wait with the attempt number that just failed.
//
// Only idempotent operations (pings, connection checks) belong here; message
// sends are never retried.
func Retry(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, next time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(
			ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier),
			uint64(policy.MaxAttempts-1),
		),
		ctx,
	)

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return backoff.Permanent(perm.err)
		}
		return err
	}

	var notify backoff.Notify
	if onRetry != nil {
		notify = func(err error, next time.Duration) {
			onRetry(attempt, err, next)
		}
	}

	return backoff.RetryNotify(operation, b, notify)
}
