package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/broker"
	"linkrelay/internal/config"
	"linkrelay/internal/logger"
	"linkrelay/pkg/retry"
)

const (
	workChannel  = "profile-requests"
	replyChannel = "profile-responses"
)

func newTestCorrelator(b broker.Consumer, opts ...Option) *Correlator {
	opts = append([]Option{WithBackoff(func() backoff.BackOff {
		return retry.ConstantBackoff(5 * time.Millisecond)
	})}, opts...)
	return NewCorrelator(b, logger.NopLogger(), opts...)
}

func sendReply(t *testing.T, b *broker.MemoryBroker, token, payload string) {
	t.Helper()
	s, err := b.OpenSender(context.Background(), replyChannel)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Send(context.Background(), broker.Message{Payload: []byte(payload), CorrelationID: token}))
}

// runWorker answers every job on the work channel with "processed:<name>"
// where name is the last path segment of the profile reference.
func runWorker(t *testing.T, ctx context.Context, b *broker.MemoryBroker) {
	t.Helper()
	r, err := b.OpenReceiver(ctx, workChannel)
	require.NoError(t, err)
	s, err := b.OpenSender(ctx, replyChannel)
	require.NoError(t, err)

	go func() {
		defer r.Close()
		defer s.Close()
		for {
			jobs, err := r.ReceiveBatch(ctx, 10, 50*time.Millisecond)
			if err != nil {
				return
			}
			for _, job := range jobs {
				if err := r.Acknowledge(ctx, job); err != nil {
					continue
				}
				ref := string(job.Payload)
				name := ref[lastSlash(ref)+1:]
				_ = s.Send(ctx, broker.Message{Payload: []byte("processed:" + name), CorrelationID: job.CorrelationID})
			}
		}
	}()
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

func TestCorrelate_RoundTrip(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runWorker(t, ctx, b)

	d := NewDispatcher(b, logger.NopLogger())
	c := newTestCorrelator(b)

	job := Job{ProfileReference: "https://example.com/in/alice", CorrelationToken: NewToken()}
	require.NoError(t, d.Dispatch(context.Background(), job, workChannel))

	out := c.Correlate(context.Background(), job.CorrelationToken, replyChannel, 2*time.Second, 10)
	require.Equal(t, Matched, out.State, "err: %v", out.Err)
	assert.Equal(t, "processed:alice", string(out.Payload))
	assert.NoError(t, out.Err)
	assert.Equal(t, 0, b.Len(replyChannel))
}

func TestCorrelate_ConcurrentJobsNeverCross(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	const n = 20
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok-%02d", i)
	}

	results := make([]Outcome, n)
	var wg sync.WaitGroup
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Correlate(context.Background(), tokens[i], replyChannel, 3*time.Second, 4)
		}(i)
	}

	// Replies arrive in reverse submission order, interleaved in shared batches.
	time.Sleep(20 * time.Millisecond)
	for i := n - 1; i >= 0; i-- {
		sendReply(t, b, tokens[i], "reply-"+tokens[i])
	}
	wg.Wait()

	for i, out := range results {
		require.Equal(t, Matched, out.State, "token %s err: %v", tokens[i], out.Err)
		assert.Equal(t, "reply-"+tokens[i], string(out.Payload))
	}
	assert.Equal(t, 0, b.Len(replyChannel))
}

func TestCorrelate_LeavesForeignReplies(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	sendReply(t, b, "someone-else", "not mine")
	sendReply(t, b, "mine", "mine")
	sendReply(t, b, "another", "not mine either")

	out := c.Correlate(context.Background(), "mine", replyChannel, time.Second, 10)
	require.Equal(t, Matched, out.State)
	assert.Equal(t, 2, b.Len(replyChannel))

	out = c.Correlate(context.Background(), "absent", replyChannel, 50*time.Millisecond, 10)
	assert.Equal(t, TimedOut, out.State)
	assert.Equal(t, 2, b.Len(replyChannel))

	r, err := b.OpenReceiver(context.Background(), replyChannel)
	require.NoError(t, err)
	defer r.Close()
	left, err := r.ReceiveBatch(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, "someone-else", left[0].CorrelationID)
	assert.Equal(t, "another", left[1].CorrelationID)
}

func TestCorrelate_TimeoutBound(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := NewCorrelator(b, logger.NopLogger())

	const timeout = 200 * time.Millisecond
	start := time.Now()
	out := c.Correlate(context.Background(), "never", replyChannel, timeout, 10)
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, out.State)
	assert.NoError(t, out.Err)
	assert.Nil(t, out.Payload)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+150*time.Millisecond)
}

func TestCorrelate_TimeoutWithForeignTraffic(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	s, err := b.OpenSender(context.Background(), replyChannel)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
		s.Close()
	}()
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Send(ctx, broker.Message{Payload: []byte("x"), CorrelationID: fmt.Sprintf("other-%d", i)})
			}
		}
	}()

	const timeout = 150 * time.Millisecond
	start := time.Now()
	out := c.Correlate(context.Background(), "never", replyChannel, timeout, 2)
	elapsed := time.Since(start)

	assert.Equal(t, TimedOut, out.State)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+150*time.Millisecond)
}

func TestCorrelate_DuplicateTokenInBatch(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	sendReply(t, b, "dup", "first")
	sendReply(t, b, "other", "keep")
	sendReply(t, b, "dup", "second")

	out := c.Correlate(context.Background(), "dup", replyChannel, time.Second, 10)
	require.Equal(t, Matched, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, "first", string(out.Payload))
	assert.Equal(t, 1, b.Len(replyChannel))
}

func TestCorrelate_DecodeFailureConsumesMessage(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	sendReply(t, b, "bad", string([]byte{0xff, 0xfe, 0xfd}))

	out := c.Correlate(context.Background(), "bad", replyChannel, time.Second, 10)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, ErrDecode)
	assert.Nil(t, out.Payload)
	assert.Equal(t, 0, b.Len(replyChannel))
}

func TestCorrelate_CustomDecoder(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b, WithDecoder(func(p []byte) ([]byte, error) {
		if len(p) == 0 {
			return nil, errors.New("empty")
		}
		return append([]byte("decoded:"), p...), nil
	}))

	sendReply(t, b, "t", "x")
	out := c.Correlate(context.Background(), "t", replyChannel, time.Second, 10)
	require.Equal(t, Matched, out.State)
	assert.Equal(t, "decoded:x", string(out.Payload))
}

func TestCorrelate_ContextCancelled(t *testing.T) {
	b := broker.NewMemoryBroker(config.MemoryBrokerConfig{})
	c := newTestCorrelator(b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	out := c.Correlate(ctx, "t", replyChannel, 5*time.Second, 10)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

type stubConsumer struct {
	openErr  error
	receiver *stubReceiver
}

func (c *stubConsumer) OpenReceiver(ctx context.Context, channel string) (broker.Receiver, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.receiver, nil
}

func (c *stubConsumer) Close() error { return nil }

type stubReceiver struct {
	batches    [][]broker.Delivery
	receiveErr error
	ackErr     error
	polls      int
	acked      []string
	closed     bool
}

func (r *stubReceiver) ReceiveBatch(ctx context.Context, max int, wait time.Duration) ([]broker.Delivery, error) {
	r.polls++
	if r.receiveErr != nil {
		return nil, r.receiveErr
	}
	if len(r.batches) == 0 {
		return []broker.Delivery{}, nil
	}
	b := r.batches[0]
	r.batches = r.batches[1:]
	return b, nil
}

func (r *stubReceiver) Acknowledge(ctx context.Context, d broker.Delivery) error {
	if r.ackErr != nil {
		return r.ackErr
	}
	r.acked = append(r.acked, d.Handle)
	return nil
}

func (r *stubReceiver) Close() error {
	r.closed = true
	return nil
}

func TestCorrelate_OpenFailure(t *testing.T) {
	boom := errors.New("link refused")
	c := NewCorrelator(&stubConsumer{openErr: boom}, logger.NopLogger())

	out := c.Correlate(context.Background(), "t", replyChannel, time.Second, 10)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, boom)
}

func TestCorrelate_ReceiveFailureIsNotRetried(t *testing.T) {
	boom := errors.New("connection reset")
	r := &stubReceiver{receiveErr: boom}
	c := NewCorrelator(&stubConsumer{receiver: r}, logger.NopLogger())

	out := c.Correlate(context.Background(), "t", replyChannel, time.Second, 10)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, boom)
	assert.Equal(t, 1, r.polls)
	assert.True(t, r.closed)
}

func TestCorrelate_AcknowledgeFailure(t *testing.T) {
	r := &stubReceiver{
		batches: [][]broker.Delivery{{{CorrelationID: "t", Payload: []byte("x"), Handle: "1"}}},
		ackErr:  broker.ErrAlreadyAcknowledged,
	}
	c := NewCorrelator(&stubConsumer{receiver: r}, logger.NopLogger())

	out := c.Correlate(context.Background(), "t", replyChannel, time.Second, 10)
	assert.Equal(t, Failed, out.State)
	assert.ErrorIs(t, out.Err, broker.ErrAlreadyAcknowledged)
	assert.True(t, r.closed)
}

func TestCorrelate_BackoffBetweenEmptyPolls(t *testing.T) {
	r := &stubReceiver{
		batches: [][]broker.Delivery{
			{},
			{{CorrelationID: "other", Handle: "1"}},
			{},
			{{CorrelationID: "t", Payload: []byte("done"), Handle: "2"}},
		},
	}

	now := time.Unix(0, 0)
	var delays []time.Duration
	c := NewCorrelator(&stubConsumer{receiver: r}, logger.NopLogger(),
		WithBackoff(func() backoff.BackOff {
			return retry.PollBackoff(10*time.Millisecond, time.Second)
		}),
		withClock(
			func() time.Time { return now },
			func(ctx context.Context, d time.Duration) error {
				delays = append(delays, d)
				now = now.Add(d)
				return nil
			},
		),
	)

	out := c.Correlate(context.Background(), "t", replyChannel, time.Minute, 10)
	require.Equal(t, Matched, out.State)
	assert.Equal(t, []string{"2"}, r.acked)
	require.Len(t, delays, 3)
	// The non-empty second batch resets the policy before its delay.
	assert.Less(t, delays[0], 13*time.Millisecond)
	assert.Less(t, delays[1], 13*time.Millisecond)
	assert.Greater(t, delays[2], 15*time.Millisecond)
}

func TestCorrelate_FullBatchPollsAgainImmediately(t *testing.T) {
	r := &stubReceiver{
		batches: [][]broker.Delivery{
			{{CorrelationID: "a", Handle: "1"}, {CorrelationID: "b", Handle: "2"}},
			{{CorrelationID: "t", Payload: []byte("ok"), Handle: "3"}},
		},
	}
	var slept int
	c := NewCorrelator(&stubConsumer{receiver: r}, logger.NopLogger(),
		withClock(time.Now, func(context.Context, time.Duration) error {
			slept++
			return nil
		}),
	)

	out := c.Correlate(context.Background(), "t", replyChannel, time.Second, 2)
	require.Equal(t, Matched, out.State)
	assert.Equal(t, 0, slept)
}

func TestCorrelate_BackoffCappedAtDeadline(t *testing.T) {
	r := &stubReceiver{}
	now := time.Unix(0, 0)
	var delays []time.Duration
	c := NewCorrelator(&stubConsumer{receiver: r}, logger.NopLogger(),
		WithBackoff(func() backoff.BackOff { return retry.ConstantBackoff(time.Hour) }),
		withClock(
			func() time.Time { return now },
			func(ctx context.Context, d time.Duration) error {
				delays = append(delays, d)
				now = now.Add(d)
				return nil
			},
		),
	)

	out := c.Correlate(context.Background(), "t", replyChannel, 2*time.Second, 10)
	assert.Equal(t, TimedOut, out.State)
	assert.Equal(t, []time.Duration{2 * time.Second}, delays)
}

func TestNext(t *testing.T) {
	tests := []struct {
		from State
		ev   event
		want State
	}{
		{Waiting, eventBatchEmpty, Waiting},
		{Waiting, eventBatchNoMatch, Waiting},
		{Waiting, eventMatched, Matched},
		{Waiting, eventDecodeFailed, Failed},
		{Waiting, eventTransportFailed, Failed},
		{Waiting, eventDeadlineReached, TimedOut},
		{Matched, eventTransportFailed, Matched},
		{TimedOut, eventMatched, TimedOut},
		{Failed, eventMatched, Failed},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.from, tt.ev), func(t *testing.T) {
			assert.Equal(t, tt.want, next(tt.from, tt.ev))
		})
	}
}

func TestUTF8Decoder(t *testing.T) {
	got, err := UTF8Decoder([]byte("processed:alice"))
	require.NoError(t, err)
	assert.Equal(t, "processed:alice", string(got))

	_, err = UTF8Decoder([]byte{0xc3, 0x28})
	assert.Error(t, err)
}
