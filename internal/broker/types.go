// Package broker is the queue client facade used by the dispatcher and the
// correlator. Producers open scoped Senders and Consumers open scoped
// Receivers; every opened Sender or Receiver must be closed by its owner.
//
// Receivers are non-destructive readers: each one sees every message still
// on the channel, oldest first, and only Acknowledge removes a message. This
// is what lets many correlators share one reply channel, each taking only
// the replies addressed to it.
package broker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed Sender, Receiver or
	// broker.
	ErrClosed = errors.New("broker: closed")

	// ErrAlreadyAcknowledged is returned when the message was already
	// removed from the channel, by this receiver or by another one.
	ErrAlreadyAcknowledged = errors.New("broker: message already acknowledged")

	// ErrUnsupported is returned when a transport cannot provide an
	// operation, such as receiving with per-message acknowledgement on Kafka.
	ErrUnsupported = errors.New("broker: operation not supported by transport")
)

// Message is an outbound message. CorrelationID travels in the transport's
// native key/partition attribute when it has one. Headers carry trace
// context only.
type Message struct {
	Payload       []byte
	CorrelationID string
	Headers       map[string]string
}

// Delivery is an inbound message. Handle identifies it for Acknowledge and is
// opaque to callers.
type Delivery struct {
	Payload       []byte
	CorrelationID string
	Headers       map[string]string
	Handle        string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

type Receiver interface {
	// ReceiveBatch returns up to maxMessages messages not yet seen by this
	// receiver, in delivery order. It waits at most maxWait for the first
	// message and returns an empty slice when none arrived.
	ReceiveBatch(ctx context.Context, maxMessages int, maxWait time.Duration) ([]Delivery, error)
	// Acknowledge permanently removes d from the channel.
	Acknowledge(ctx context.Context, d Delivery) error
	Close() error
}

type Producer interface {
	OpenSender(ctx context.Context, channel string) (Sender, error)
	Close() error
}

type Consumer interface {
	OpenReceiver(ctx context.Context, channel string) (Receiver, error)
	Close() error
}

const (
	TransportKafka  = "kafka"
	TransportRedis  = "redis"
	TransportMemory = "memory"
)
