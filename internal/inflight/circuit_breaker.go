package inflight

import (
	"context"
	"fmt"
	"time"

	"linkrelay/internal/config"
	"linkrelay/pkg/circuitbreaker"
)

type CircuitBreakerRegistry struct {
	registry Registry
	cb       *circuitbreaker.Wrapper
}

func NewCircuitBreakerRegistry(registry Registry, cfg config.CircuitBreakerConfig) *CircuitBreakerRegistry {
	if !cfg.Enabled {
		return &CircuitBreakerRegistry{registry: registry}
	}

	return &CircuitBreakerRegistry{
		registry: registry,
		cb:       circuitbreaker.NewWrapper(circuitbreaker.FromConfig("redis-inflight", cfg)),
	}
}

func (r *CircuitBreakerRegistry) Reserve(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if r.cb == nil {
		return r.registry.Reserve(ctx, token, ttl)
	}

	var reserved bool
	err := r.cb.Run(ctx, func() error {
		var err error
		reserved, err = r.registry.Reserve(ctx, token, ttl)
		return err
	})
	if err != nil {
		if r.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for redis-inflight: %w", err)
		}
		return false, err
	}
	return reserved, nil
}

// Release bypasses the breaker; an unreleased token still expires with its TTL.
func (r *CircuitBreakerRegistry) Release(ctx context.Context, token string) error {
	return r.registry.Release(ctx, token)
}

func (r *CircuitBreakerRegistry) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
