package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"linkrelay/internal/config"
	"linkrelay/internal/constants"
	"linkrelay/internal/logger"
	"linkrelay/pkg/metrics"
)

// HeaderCorrelationID carries the token alongside the message key so that
// workers which do not inspect keys can still echo it.
const HeaderCorrelationID = "correlation-id"

// KafkaProducer is a send-only transport. One kafka.Writer is shared by all
// senders; the topic is chosen per message.
type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger

	mu     sync.RWMutex
	closed bool
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = constants.KafkaBatchTimeout
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = constants.KafkaWriteTimeout
	}

	w := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers...),
		// Jobs with the same token land on the same partition.
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

func (p *KafkaProducer) OpenSender(ctx context.Context, channel string) (Sender, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	if channel == "" {
		return nil, fmt.Errorf("kafka sender: empty topic")
	}
	return &kafkaSender{producer: p, topic: channel}, nil
}

func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.writer.Close()
}

func (p *KafkaProducer) write(ctx context.Context, topic string, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	return p.writer.WriteMessages(ctx, toKafkaMessage(topic, msg))
}

func toKafkaMessage(topic string, msg Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers)+1)
	if msg.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(msg.CorrelationID)})
	}
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	km := kafka.Message{
		Topic:   topic,
		Value:   msg.Payload,
		Headers: headers,
		Time:    time.Now(),
	}
	if msg.CorrelationID != "" {
		km.Key = []byte(msg.CorrelationID)
	}
	return km
}

type kafkaSender struct {
	producer *KafkaProducer
	topic    string

	mu     sync.Mutex
	closed bool
}

func (s *kafkaSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	start := time.Now()
	err := s.producer.write(ctx, s.topic, msg)
	if err != nil {
		metrics.ObserveSend(TransportKafka, s.topic, "error", len(msg.Payload), time.Since(start))
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	metrics.ObserveSend(TransportKafka, s.topic, "success", len(msg.Payload), time.Since(start))

	s.producer.logger.DebugwCtx(ctx, "Message sent",
		"transport", TransportKafka,
		"topic", s.topic,
		"size_bytes", len(msg.Payload),
	)
	return nil
}

// Close releases the sender. The shared writer stays open until the producer
// is closed.
func (s *kafkaSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
