package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ExponentialBackoff never gives up on its own; callers bound it by
// attempts, context or deadline.
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// PollBackoff is the delay policy between empty polls of a queue: it starts
// at initial, doubles up to max, and uses a small jitter so that many
// concurrent pollers do not hit the broker in lockstep.
func PollBackoff(initial, max time.Duration) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = max
	exp.Multiplier = 2.0
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()
	return exp
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(d)
}
