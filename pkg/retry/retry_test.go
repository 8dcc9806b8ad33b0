package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(attempt int, err error, next time.Duration) {
		retried = append(retried, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Retry(context.Background(), fastPolicy(3), func() error {
		calls++
		return boom
	}, nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetry_PermanentStops(t *testing.T) {
	calls := 0
	fatal := errors.New("bad credentials")

	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return Permanent(fatal)
	}, nil)

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastPolicy(5), func() error {
		return errors.New("unreachable")
	}, nil)

	assert.Error(t, err)
}

func TestPollBackoff_GrowsToMax(t *testing.T) {
	b := PollBackoff(10*time.Millisecond, 40*time.Millisecond)

	first := b.NextBackOff()
	assert.InDelta(t, float64(10*time.Millisecond), float64(first), float64(2*time.Millisecond))

	var last time.Duration
	for i := 0; i < 10; i++ {
		last = b.NextBackOff()
	}
	assert.LessOrEqual(t, last, 48*time.Millisecond)
	assert.GreaterOrEqual(t, last, 32*time.Millisecond)

	b.Reset()
	assert.Less(t, b.NextBackOff(), 13*time.Millisecond)
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(7 * time.Millisecond)
	assert.Equal(t, 7*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 7*time.Millisecond, b.NextBackOff())
}
