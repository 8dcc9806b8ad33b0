package broker

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"linkrelay/internal/config"
	"linkrelay/internal/logger"
)

// Dependencies are the shared clients a transport may need. Memory is used
// when both queues run in-process so that senders and receivers meet.
type Dependencies struct {
	Redis  *redis.Client
	Memory *MemoryBroker
}

func NewProducer(cfg config.BrokerConfig, deps Dependencies, log logger.Logger) (Producer, error) {
	switch cfg.Work {
	case TransportKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case TransportRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis producer requires a redis client")
		}
		return NewRedisBroker(deps.Redis, cfg.Redis, log), nil
	case TransportMemory:
		if deps.Memory == nil {
			return nil, fmt.Errorf("memory producer requires a memory broker")
		}
		return deps.Memory, nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Work)
	}
}

func NewConsumer(cfg config.BrokerConfig, deps Dependencies, log logger.Logger) (Consumer, error) {
	switch cfg.Reply {
	case TransportRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("redis consumer requires a redis client")
		}
		return NewRedisBroker(deps.Redis, cfg.Redis, log), nil
	case TransportMemory:
		if deps.Memory == nil {
			return nil, fmt.Errorf("memory consumer requires a memory broker")
		}
		return deps.Memory, nil
	case TransportKafka:
		return nil, fmt.Errorf("kafka reply queue: %w", ErrUnsupported)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Reply)
	}
}
