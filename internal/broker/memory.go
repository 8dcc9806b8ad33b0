package broker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"linkrelay/internal/config"
	"linkrelay/pkg/metrics"
)

// MemoryBroker is an in-process transport with the same reader semantics as
// the Redis one: an append-only log per channel, a private cursor per
// receiver, and removal only on Acknowledge. It is both a Producer and a
// Consumer.
type MemoryBroker struct {
	maxLen    int
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	channels map[string]*memoryChannel
	closed   bool
}

type memoryChannel struct {
	entries []memoryEntry
	nextSeq uint64
	// wake is closed and replaced on every append.
	wake chan struct{}
}

type memoryEntry struct {
	seq uint64
	at  time.Time
	msg Message
}

func NewMemoryBroker(cfg config.MemoryBrokerConfig) *MemoryBroker {
	return &MemoryBroker{
		maxLen:    cfg.MaxLen,
		retention: cfg.Retention,
		now:       time.Now,
		channels:  make(map[string]*memoryChannel),
	}
}

// channel must be called with b.mu held.
func (b *MemoryBroker) channel(name string) *memoryChannel {
	ch, ok := b.channels[name]
	if !ok {
		ch = &memoryChannel{wake: make(chan struct{})}
		b.channels[name] = ch
	}
	return ch
}

func (b *MemoryBroker) OpenSender(ctx context.Context, channel string) (Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if channel == "" {
		return nil, fmt.Errorf("memory sender: empty channel name")
	}
	b.channel(channel)
	return &memorySender{broker: b, name: channel}, nil
}

func (b *MemoryBroker) OpenReceiver(ctx context.Context, channel string) (Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if channel == "" {
		return nil, fmt.Errorf("memory receiver: empty channel name")
	}
	b.channel(channel)
	return &memoryReceiver{broker: b, name: channel}, nil
}

// Close wakes every blocked receiver; later operations return ErrClosed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.channels {
		close(ch.wake)
		ch.wake = make(chan struct{})
	}
	return nil
}

// Len reports how many messages are still on channel.
func (b *MemoryBroker) Len(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[channel]
	if !ok {
		return 0
	}
	b.trim(ch)
	return len(ch.entries)
}

func (b *MemoryBroker) append(name string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	ch := b.channel(name)
	ch.nextSeq++
	ch.entries = append(ch.entries, memoryEntry{seq: ch.nextSeq, at: b.now(), msg: copyMessage(msg)})
	b.trim(ch)

	close(ch.wake)
	ch.wake = make(chan struct{})
	return nil
}

// trim drops the oldest entries beyond maxLen or older than retention. Must
// be called with b.mu held.
func (b *MemoryBroker) trim(ch *memoryChannel) {
	drop := 0
	if b.maxLen > 0 && len(ch.entries) > b.maxLen {
		drop = len(ch.entries) - b.maxLen
	}
	if b.retention > 0 {
		cutoff := b.now().Add(-b.retention)
		for drop < len(ch.entries) && ch.entries[drop].at.Before(cutoff) {
			drop++
		}
	}
	if drop > 0 {
		ch.entries = append(ch.entries[:0:0], ch.entries[drop:]...)
	}
}

// read returns up to max entries after cursor, or the channel's wake channel
// when there are none.
func (b *MemoryBroker) read(name string, cursor uint64, max int) ([]Delivery, <-chan struct{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}

	ch := b.channel(name)
	b.trim(ch)
	i := sort.Search(len(ch.entries), func(i int) bool { return ch.entries[i].seq > cursor })

	var out []Delivery
	for ; i < len(ch.entries) && len(out) < max; i++ {
		e := ch.entries[i]
		msg := copyMessage(e.msg)
		out = append(out, Delivery{
			Payload:       msg.Payload,
			CorrelationID: msg.CorrelationID,
			Headers:       msg.Headers,
			Handle:        strconv.FormatUint(e.seq, 10),
		})
	}
	if len(out) > 0 {
		return out, nil, nil
	}
	return nil, ch.wake, nil
}

func (b *MemoryBroker) remove(name, handle string) error {
	seq, err := strconv.ParseUint(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("memory acknowledge: invalid handle %q", handle)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	ch := b.channel(name)
	i := sort.Search(len(ch.entries), func(i int) bool { return ch.entries[i].seq >= seq })
	if i == len(ch.entries) || ch.entries[i].seq != seq {
		return ErrAlreadyAcknowledged
	}
	ch.entries = append(ch.entries[:i], ch.entries[i+1:]...)
	return nil
}

func copyMessage(msg Message) Message {
	out := Message{CorrelationID: msg.CorrelationID}
	if msg.Payload != nil {
		out.Payload = append([]byte(nil), msg.Payload...)
	}
	if msg.Headers != nil {
		out.Headers = make(map[string]string, len(msg.Headers))
		for k, v := range msg.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

type memorySender struct {
	broker *MemoryBroker
	name   string

	mu     sync.Mutex
	closed bool
}

func (s *memorySender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	if err := s.broker.append(s.name, msg); err != nil {
		metrics.ObserveSend(TransportMemory, s.name, "error", len(msg.Payload), time.Since(start))
		return err
	}
	metrics.ObserveSend(TransportMemory, s.name, "success", len(msg.Payload), time.Since(start))
	return nil
}

func (s *memorySender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type memoryReceiver struct {
	broker *MemoryBroker
	name   string

	mu     sync.Mutex
	cursor uint64
	closed bool
}

func (r *memoryReceiver) ReceiveBatch(ctx context.Context, maxMessages int, maxWait time.Duration) ([]Delivery, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	var timer *time.Timer
	if maxWait > 0 {
		timer = time.NewTimer(maxWait)
		defer timer.Stop()
	}

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		cursor := r.cursor
		r.mu.Unlock()

		out, wake, err := r.broker.read(r.name, cursor, maxMessages)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 {
			last, _ := strconv.ParseUint(out[len(out)-1].Handle, 10, 64)
			r.mu.Lock()
			r.cursor = last
			r.mu.Unlock()
			for _, d := range out {
				metrics.ObserveReceived(TransportMemory, r.name, len(d.Payload))
			}
			return out, nil
		}
		if timer == nil {
			return []Delivery{}, nil
		}

		select {
		case <-wake:
		case <-timer.C:
			return []Delivery{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *memoryReceiver) Acknowledge(ctx context.Context, d Delivery) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	err := r.broker.remove(r.name, d.Handle)
	switch {
	case err == nil:
		metrics.IncAcknowledged(TransportMemory, r.name, "success")
	case err == ErrAlreadyAcknowledged:
		metrics.IncAcknowledged(TransportMemory, r.name, "already_acknowledged")
	default:
		metrics.IncAcknowledged(TransportMemory, r.name, "error")
	}
	return err
}

func (r *memoryReceiver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
