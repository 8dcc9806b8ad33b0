package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"linkrelay/internal/constants"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type Checker interface {
	Check(ctx context.Context) error
	Name() string
}

// Degradable is a checker whose failure degrades the service instead of
// making it unhealthy.
type Degradable interface {
	Degraded() bool
}

type Health struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type CheckerRegistry struct {
	checkers []Checker
}

func NewCheckerRegistry() *CheckerRegistry {
	return &CheckerRegistry{
		checkers: make([]Checker, 0),
	}
}

func (r *CheckerRegistry) Register(checker Checker) {
	r.checkers = append(r.checkers, checker)
}

func (r *CheckerRegistry) Check(ctx context.Context) Health {
	results := make(map[string]CheckResult)
	allHealthy := true
	anyDegraded := false

	for _, checker := range r.checkers {
		err := checker.Check(ctx)
		result := CheckResult{
			Timestamp: time.Now(),
		}

		switch {
		case err == nil:
			result.Status = StatusHealthy
		case isDegradable(checker):
			result.Status = StatusDegraded
			result.Message = err.Error()
			anyDegraded = true
		default:
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			allHealthy = false
		}

		results[checker.Name()] = result
	}

	overallStatus := StatusHealthy
	if !allHealthy {
		overallStatus = StatusUnhealthy
	} else if anyDegraded {
		overallStatus = StatusDegraded
	}

	return Health{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
	}
}

func isDegradable(c Checker) bool {
	d, ok := c.(Degradable)
	return ok && d.Degraded()
}

type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string {
	return "redis"
}

func (c *RedisChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthTimeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// KafkaChecker succeeds when at least one seed broker accepts a connection.
type KafkaChecker struct {
	brokers []string
	dialer  *kafka.Dialer
}

func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{
		brokers: brokers,
		dialer:  &kafka.Dialer{Timeout: constants.HealthTimeout},
	}
}

func (c *KafkaChecker) Name() string {
	return "kafka"
}

func (c *KafkaChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthTimeout)
	defer cancel()

	var lastErr error
	for _, addr := range c.brokers {
		conn, err := c.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		conn.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &net.AddrError{Err: "no brokers configured"}
	}
	return fmt.Errorf("kafka dial failed: %w", lastErr)
}

// BreakerChecker reports a degraded service while the named circuit breaker
// is open.
type BreakerChecker struct {
	name   string
	isOpen func() bool
}

func NewBreakerChecker(name string, isOpen func() bool) *BreakerChecker {
	return &BreakerChecker{name: name, isOpen: isOpen}
}

func (c *BreakerChecker) Name() string {
	return "circuit_breaker:" + c.name
}

func (c *BreakerChecker) Check(context.Context) error {
	if c.isOpen() {
		return fmt.Errorf("circuit breaker %s is open", c.name)
	}
	return nil
}

func (c *BreakerChecker) Degraded() bool { return true }
