package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"linkrelay/internal/broker"
	"linkrelay/internal/constants"
	"linkrelay/internal/logger"
	"linkrelay/pkg/logging"
	"linkrelay/pkg/metrics"
	"linkrelay/pkg/retry"
	"linkrelay/pkg/tracing"
)

type State int

const (
	Waiting State = iota
	Matched
	TimedOut
	Failed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Matched:
		return "matched"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one Correlate call. Payload is set only when
// State is Matched, Err only when State is Failed.
type Outcome struct {
	State   State
	Payload []byte
	Err     error
}

// ErrDecode marks a matched reply whose payload could not be decoded. The
// reply is consumed regardless.
var ErrDecode = errors.New("correlation: reply payload could not be decoded")

// Decoder validates or transforms a matched reply payload.
type Decoder func(payload []byte) ([]byte, error)

// UTF8Decoder accepts any payload that is valid UTF-8.
func UTF8Decoder(payload []byte) ([]byte, error) {
	if !utf8.Valid(payload) {
		return nil, errors.New("payload is not valid UTF-8")
	}
	return payload, nil
}

type event int

const (
	eventBatchEmpty event = iota
	eventBatchNoMatch
	eventMatched
	eventDecodeFailed
	eventTransportFailed
	eventDeadlineReached
)

func (e event) String() string {
	switch e {
	case eventBatchEmpty:
		return "empty"
	case eventBatchNoMatch:
		return "no_match"
	case eventMatched:
		return "matched"
	case eventDecodeFailed:
		return "decode_failed"
	case eventTransportFailed:
		return "error"
	case eventDeadlineReached:
		return "deadline"
	default:
		return "unknown"
	}
}

// next is the transition function of the receive loop. Terminal states
// absorb every event.
func next(s State, e event) State {
	if s != Waiting {
		return s
	}
	switch e {
	case eventMatched:
		return Matched
	case eventDecodeFailed, eventTransportFailed:
		return Failed
	case eventDeadlineReached:
		return TimedOut
	default:
		return Waiting
	}
}

type Option func(*Correlator)

func WithDecoder(d Decoder) Option {
	return func(c *Correlator) {
		c.decode = d
	}
}

// WithBackoff sets the delay policy between polls that found nothing. The
// factory is called once per Correlate.
func WithBackoff(newPolicy func() backoff.BackOff) Option {
	return func(c *Correlator) {
		c.newBackoff = newPolicy
	}
}

func withClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(c *Correlator) {
		c.now = now
		c.sleep = sleep
	}
}

// Correlator waits for the reply carrying a given token on a shared reply
// channel. Any number of Correlate calls may run concurrently against the
// same channel; each acknowledges only messages carrying its own token.
type Correlator struct {
	consumer   broker.Consumer
	logger     logger.Logger
	decode     Decoder
	newBackoff func() backoff.BackOff
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

func NewCorrelator(consumer broker.Consumer, log logger.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		consumer: consumer,
		logger:   log,
		decode:   UTF8Decoder,
		newBackoff: func() backoff.BackOff {
			return retry.PollBackoff(constants.DefaultPollBackoffInitial, constants.DefaultPollBackoffMax)
		},
		now:   time.Now,
		sleep: sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Correlate polls replyChannel until a message tagged with token arrives or
// overallTimeout elapses. Messages carrying other tokens are left on the
// channel for whoever is waiting on them.
func (c *Correlator) Correlate(ctx context.Context, token, replyChannel string, overallTimeout time.Duration, pollBatchSize int) Outcome {
	start := c.now()
	deadline := start.Add(overallTimeout)
	if pollBatchSize <= 0 {
		pollBatchSize = 1
	}

	ctx = logging.WithCorrelationID(ctx, token)
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "correlation.correlate")
	defer span.End()
	span.SetAttributes(
		attribute.String("messaging.destination.name", replyChannel),
		attribute.String("messaging.message.conversation_id", token),
	)

	out := c.run(ctx, token, replyChannel, deadline, pollBatchSize)

	span.SetAttributes(attribute.String("correlation.outcome", out.State.String()))
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, "correlation failed")
	}

	fields := []interface{}{
		"channel", replyChannel,
		"outcome", out.State.String(),
		"duration_ms", c.now().Sub(start).Milliseconds(),
	}
	switch out.State {
	case Failed:
		c.logger.ErrorwCtx(ctx, "Correlation failed", append(fields, "error", out.Err)...)
	case TimedOut:
		c.logger.WarnwCtx(ctx, "No reply before deadline", fields...)
	default:
		c.logger.InfowCtx(ctx, "Reply matched", fields...)
	}
	return out
}

func (c *Correlator) run(ctx context.Context, token, replyChannel string, deadline time.Time, pollBatchSize int) (out Outcome) {
	receiver, err := c.consumer.OpenReceiver(ctx, replyChannel)
	if err != nil {
		return Outcome{State: Failed, Err: fmt.Errorf("failed to open receiver for %s: %w", replyChannel, err)}
	}
	defer func() {
		if err := receiver.Close(); err != nil {
			c.logger.WarnwCtx(ctx, "Failed to close receiver",
				"channel", replyChannel,
				"error", err,
			)
		}
	}()

	policy := c.newBackoff()
	policy.Reset()
	state := Waiting

	for state == Waiting {
		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			state = next(state, eventDeadlineReached)
			break
		}
		if err := ctx.Err(); err != nil {
			state = next(state, eventTransportFailed)
			out.Err = err
			break
		}

		batch, err := receiver.ReceiveBatch(ctx, pollBatchSize, remaining)
		if err != nil {
			metrics.IncPoll(replyChannel, eventTransportFailed.String())
			state = next(state, eventTransportFailed)
			out.Err = fmt.Errorf("failed to receive from %s: %w", replyChannel, err)
			break
		}

		ev, scanned := c.scan(ctx, receiver, token, replyChannel, batch)
		metrics.IncPoll(replyChannel, ev.String())
		state = next(state, ev)
		if state != Waiting {
			out = scanned
			break
		}

		c.logger.DebugwCtx(ctx, "Poll found no reply",
			"channel", replyChannel,
			"batch_size", len(batch),
		)

		if len(batch) > 0 {
			policy.Reset()
		}
		if len(batch) >= pollBatchSize {
			continue
		}

		delay := policy.NextBackOff()
		remaining = deadline.Sub(c.now())
		if delay == backoff.Stop || delay > remaining {
			delay = remaining
		}
		if delay <= 0 {
			continue
		}
		if err := c.sleep(ctx, delay); err != nil {
			state = next(state, eventTransportFailed)
			out.Err = err
		}
	}

	out.State = state
	return out
}

// scan examines batch in delivery order. The first message carrying token is
// acknowledged and decoded; later copies of it in the same batch are
// acknowledged and dropped. Nothing else is touched.
func (c *Correlator) scan(ctx context.Context, receiver broker.Receiver, token, replyChannel string, batch []broker.Delivery) (event, Outcome) {
	if len(batch) == 0 {
		return eventBatchEmpty, Outcome{}
	}

	ev := eventBatchNoMatch
	var out Outcome
	unmatched := 0

	for _, d := range batch {
		if d.CorrelationID != token {
			unmatched++
			continue
		}

		if ev != eventBatchNoMatch {
			metrics.IncDuplicate(replyChannel)
			if err := receiver.Acknowledge(ctx, d); err != nil && !errors.Is(err, broker.ErrAlreadyAcknowledged) {
				c.logger.WarnwCtx(ctx, "Failed to acknowledge duplicate reply",
					"channel", replyChannel,
					"error", err,
				)
			}
			continue
		}

		if err := receiver.Acknowledge(ctx, d); err != nil {
			metrics.AddUnmatched(replyChannel, unmatched)
			return eventTransportFailed, Outcome{Err: fmt.Errorf("failed to acknowledge reply on %s: %w", replyChannel, err)}
		}

		payload, err := c.decode(d.Payload)
		if err != nil {
			ev = eventDecodeFailed
			out = Outcome{Err: fmt.Errorf("%w: %v", ErrDecode, err)}
			continue
		}
		ev = eventMatched
		out = Outcome{Payload: payload}
	}

	metrics.AddUnmatched(replyChannel, unmatched)
	return ev, out
}
