package broker

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"linkrelay/internal/config"
	"linkrelay/internal/logger"
	"linkrelay/pkg/circuitbreaker"
)

// BreakerProducer guards every Send of the wrapped Producer with one shared
// circuit breaker, so a dead broker fails requests fast instead of each one
// waiting out the write timeout.
type BreakerProducer struct {
	next    Producer
	breaker *circuitbreaker.Wrapper
}

func NewBreakerProducer(next Producer, name string, cfg config.CircuitBreakerConfig, log logger.Logger) *BreakerProducer {
	cbCfg := circuitbreaker.FromConfig(name, cfg)
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warnw("Circuit breaker state changed",
			"name", name,
			"from", from.String(),
			"to", to.String(),
		)
	}

	return &BreakerProducer{next: next, breaker: circuitbreaker.NewWrapper(cbCfg)}
}

func (p *BreakerProducer) OpenSender(ctx context.Context, channel string) (Sender, error) {
	s, err := p.next.OpenSender(ctx, channel)
	if err != nil {
		return nil, err
	}
	return &breakerSender{next: s, breaker: p.breaker}, nil
}

func (p *BreakerProducer) Close() error {
	return p.next.Close()
}

func (p *BreakerProducer) IsOpen() bool {
	return p.breaker.IsOpen()
}

type breakerSender struct {
	next    Sender
	breaker *circuitbreaker.Wrapper
}

func (s *breakerSender) Send(ctx context.Context, msg Message) error {
	err := s.breaker.Run(ctx, func() error {
		return s.next.Send(ctx, msg)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("circuit breaker %s: %w", s.breaker.Name(), err)
	}
	return err
}

func (s *breakerSender) Close() error {
	return s.next.Close()
}
