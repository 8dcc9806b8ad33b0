package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"linkrelay/internal/config"
	"linkrelay/internal/constants"
	"linkrelay/internal/logger"
	"linkrelay/pkg/metrics"
)

const (
	streamFieldPayload       = "payload"
	streamFieldCorrelationID = "correlation_id"
	streamHeaderPrefix       = "h:"

	// streamStart makes a new receiver begin at the oldest entry when no
	// retention is configured.
	streamStart = "0-0"
)

// RedisBroker maps each channel to a Redis stream. Senders XADD with
// approximate trimming; opening a receiver trims exactly. Receivers XREAD
// from a private cursor and acknowledge with XDEL, so every receiver sees
// every retained entry until someone removes it.
type RedisBroker struct {
	client *redis.Client
	cfg    config.RedisStreamsConfig
	logger logger.Logger
	now    func() time.Time
}

func NewRedisBroker(client *redis.Client, cfg config.RedisStreamsConfig, log logger.Logger) *RedisBroker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = constants.StreamKeyPrefix
	}
	return &RedisBroker{client: client, cfg: cfg, logger: log, now: time.Now}
}

func (b *RedisBroker) key(channel string) string {
	return b.cfg.KeyPrefix + channel
}

func (b *RedisBroker) OpenSender(ctx context.Context, channel string) (Sender, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis sender: empty stream name")
	}
	return &redisSender{broker: b, channel: channel, key: b.key(channel)}, nil
}

// OpenReceiver applies the stream's retention before reading. Reply streams
// are written by workers that never trim, so this is where orphans go away.
// The cursor starts at the retention horizon so entries a concurrent trim has
// not reached yet are skipped as well.
func (b *RedisBroker) OpenReceiver(ctx context.Context, channel string) (Receiver, error) {
	if channel == "" {
		return nil, fmt.Errorf("redis receiver: empty stream name")
	}
	key := b.key(channel)
	cursor := streamStart
	if minID, ok := b.retentionMinID(); ok {
		cursor = minID
	}
	if err := b.trim(ctx, key); err != nil {
		b.logger.WarnwCtx(ctx, "Failed to trim stream",
			"stream", key,
			"error", err,
		)
	}
	return &redisReceiver{broker: b, channel: channel, key: key, cursor: cursor}, nil
}

// retentionMinID is the lowest stream ID still inside the retention window.
func (b *RedisBroker) retentionMinID() (string, bool) {
	if b.cfg.Retention <= 0 {
		return "", false
	}
	return fmt.Sprintf("%d-0", b.now().Add(-b.cfg.Retention).UnixMilli()), true
}

// trim enforces max length and retention exactly.
func (b *RedisBroker) trim(ctx context.Context, key string) error {
	minID, byAge := b.retentionMinID()
	if b.cfg.MaxLen <= 0 && !byAge {
		return nil
	}
	pipe := b.client.Pipeline()
	if b.cfg.MaxLen > 0 {
		pipe.XTrimMaxLen(ctx, key, b.cfg.MaxLen)
	}
	if byAge {
		pipe.XTrimMinID(ctx, key, minID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Close is a no-op; the client belongs to the caller.
func (b *RedisBroker) Close() error {
	return nil
}

type redisSender struct {
	broker  *RedisBroker
	channel string
	key     string

	mu     sync.Mutex
	closed bool
}

func (s *redisSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	values := map[string]interface{}{
		streamFieldPayload: msg.Payload,
	}
	if msg.CorrelationID != "" {
		values[streamFieldCorrelationID] = msg.CorrelationID
	}
	for k, v := range msg.Headers {
		values[streamHeaderPrefix+k] = v
	}

	start := time.Now()
	pipe := s.broker.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		MaxLen: s.broker.cfg.MaxLen,
		Approx: true,
		Values: values,
	})
	if minID, ok := s.broker.retentionMinID(); ok {
		pipe.XTrimMinIDApprox(ctx, s.key, minID, 0)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		metrics.ObserveSend(TransportRedis, s.channel, "error", len(msg.Payload), time.Since(start))
		return fmt.Errorf("redis XADD failed: %w", err)
	}
	metrics.ObserveSend(TransportRedis, s.channel, "success", len(msg.Payload), time.Since(start))

	s.broker.logger.DebugwCtx(ctx, "Message sent",
		"transport", TransportRedis,
		"stream", s.key,
		"size_bytes", len(msg.Payload),
	)
	return nil
}

func (s *redisSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type redisReceiver struct {
	broker  *RedisBroker
	channel string
	key     string

	mu     sync.Mutex
	cursor string
	closed bool
}

func (r *redisReceiver) ReceiveBatch(ctx context.Context, maxMessages int, maxWait time.Duration) ([]Delivery, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	cursor := r.cursor
	r.mu.Unlock()

	if maxMessages <= 0 {
		maxMessages = 1
	}

	// XREAD BLOCK 0 waits forever; anything under a millisecond is a plain
	// non-blocking read.
	block := time.Duration(-1)
	if maxWait >= time.Millisecond {
		block = maxWait
	}

	streams, err := r.broker.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{r.key, cursor},
		Count:   int64(maxMessages),
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return []Delivery{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis XREAD failed: %w", err)
	}

	var out []Delivery
	for _, stream := range streams {
		for _, m := range stream.Messages {
			d := toDelivery(m)
			metrics.ObserveReceived(TransportRedis, r.channel, len(d.Payload))
			out = append(out, d)
		}
	}
	if len(out) > 0 {
		r.mu.Lock()
		r.cursor = out[len(out)-1].Handle
		r.mu.Unlock()
	}
	if out == nil {
		out = []Delivery{}
	}
	return out, nil
}

func toDelivery(m redis.XMessage) Delivery {
	d := Delivery{Handle: m.ID}
	for field, raw := range m.Values {
		v := fmt.Sprint(raw)
		switch {
		case field == streamFieldPayload:
			d.Payload = []byte(v)
		case field == streamFieldCorrelationID:
			d.CorrelationID = v
		case strings.HasPrefix(field, streamHeaderPrefix):
			if d.Headers == nil {
				d.Headers = make(map[string]string)
			}
			d.Headers[strings.TrimPrefix(field, streamHeaderPrefix)] = v
		}
	}
	return d
}

func (r *redisReceiver) Acknowledge(ctx context.Context, d Delivery) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	n, err := r.broker.client.XDel(ctx, r.key, d.Handle).Result()
	if err != nil {
		metrics.IncAcknowledged(TransportRedis, r.channel, "error")
		return fmt.Errorf("redis XDEL failed: %w", err)
	}
	if n == 0 {
		metrics.IncAcknowledged(TransportRedis, r.channel, "already_acknowledged")
		return ErrAlreadyAcknowledged
	}
	metrics.IncAcknowledged(TransportRedis, r.channel, "success")
	return nil
}

func (r *redisReceiver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
