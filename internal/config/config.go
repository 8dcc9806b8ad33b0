package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Broker         BrokerConfig
	Redis          RedisConfig
	Correlation    CorrelationConfig
	InFlight       InFlightConfig `mapstructure:"inflight"`
	Validation     ValidationConfig
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Logging        LoggingConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
	Swagger             bool          `mapstructure:"swagger"`
}

// BrokerConfig selects the transport of each queue independently. The work
// queue may be "kafka", "redis" or "memory"; the reply queue "redis" or
// "memory".
type BrokerConfig struct {
	Work   string             `mapstructure:"work"`
	Reply  string             `mapstructure:"reply"`
	Kafka  KafkaConfig        `mapstructure:"kafka"`
	Redis  RedisStreamsConfig `mapstructure:"redis_streams"`
	Memory MemoryBrokerConfig `mapstructure:"memory"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

type RedisStreamsConfig struct {
	KeyPrefix string        `mapstructure:"key_prefix"`
	MaxLen    int64         `mapstructure:"max_len"`
	Retention time.Duration `mapstructure:"retention"`
}

type MemoryBrokerConfig struct {
	MaxLen    int           `mapstructure:"max_len"`
	Retention time.Duration `mapstructure:"retention"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CorrelationConfig struct {
	WorkQueue          string        `mapstructure:"work_queue"`
	ReplyQueue         string        `mapstructure:"reply_queue"`
	Timeout            time.Duration `mapstructure:"timeout"`
	PollBatchSize      int           `mapstructure:"poll_batch_size"`
	PollBackoffInitial time.Duration `mapstructure:"poll_backoff_initial"`
	PollBackoffMax     time.Duration `mapstructure:"poll_backoff_max"`
}

// InFlightConfig controls the registry that keeps caller supplied tokens
// unique while their jobs are outstanding. Store is "redis" or "memory".
type InFlightConfig struct {
	Store     string        `mapstructure:"store"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Grace     time.Duration `mapstructure:"grace"`
}

type ValidationConfig struct {
	Rules []ValidationRule `mapstructure:"rules"`
}

// ValidationRule is a CEL expression over profile_id and partition_key that
// must evaluate to true for a job to be accepted.
type ValidationRule struct {
	Field      string `mapstructure:"field"`
	Expression string `mapstructure:"expression"`
	Message    string `mapstructure:"message"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
