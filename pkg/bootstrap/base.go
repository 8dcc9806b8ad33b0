package bootstrap

import (
	"context"
	"fmt"

	"linkrelay/internal/broker"
	"linkrelay/internal/config"
	"linkrelay/internal/logger"
)

// Base holds what every linkrelay process needs: config, logger and the two
// queue clients.
type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer

	// Breaker is set when the work queue producer runs behind a circuit
	// breaker.
	Breaker *broker.BreakerProducer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker opens the work queue producer and the reply queue consumer.
// When the memory transport is selected for either side and deps carries no
// memory broker, one is created so both sides meet in-process.
func (b *Base) InitBroker(deps broker.Dependencies) error {
	cfg := b.Config.Broker
	if deps.Memory == nil && (cfg.Work == broker.TransportMemory || cfg.Reply == broker.TransportMemory) {
		deps.Memory = broker.NewMemoryBroker(cfg.Memory)
	}

	producer, err := broker.NewProducer(cfg, deps, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(cfg, deps, b.Logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if b.Config.CircuitBreaker.Enabled {
		b.Breaker = broker.NewBreakerProducer(producer, "work-queue", b.Config.CircuitBreaker, b.Logger)
		producer = b.Breaker
	}

	b.Producer = producer
	b.Consumer = consumer
	b.Logger.Infow("Broker initialized", "work", cfg.Work, "reply", cfg.Reply, "circuit_breaker", b.Breaker != nil)
	return nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	return errs
}

// Shutdown runs additionalShutdown first so the HTTP server stops taking
// requests before the queue clients go away.
func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	errs = append(errs, b.ShutdownBroker()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
