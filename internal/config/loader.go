package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"linkrelay/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", constants.DefaultReadTimeout)
	viper.SetDefault("server.write_timeout_seconds", constants.DefaultWriteTimeout)

	viper.SetDefault("broker.work", "kafka")
	viper.SetDefault("broker.reply", "redis")
	viper.SetDefault("broker.kafka.batch_timeout", constants.KafkaBatchTimeout)
	viper.SetDefault("broker.kafka.write_timeout", constants.KafkaWriteTimeout)
	viper.SetDefault("broker.kafka.required_acks", -1)
	viper.SetDefault("broker.redis_streams.key_prefix", constants.StreamKeyPrefix)
	viper.SetDefault("broker.redis_streams.max_len", constants.DefaultStreamMaxLen)
	viper.SetDefault("broker.redis_streams.retention", constants.DefaultStreamRetention)
	viper.SetDefault("broker.memory.max_len", constants.DefaultStreamMaxLen)
	viper.SetDefault("broker.memory.retention", constants.DefaultStreamRetention)

	viper.SetDefault("correlation.work_queue", constants.DefaultWorkQueue)
	viper.SetDefault("correlation.reply_queue", constants.DefaultReplyQueue)
	viper.SetDefault("correlation.timeout", constants.DefaultCorrelationTimeout)
	viper.SetDefault("correlation.poll_batch_size", constants.DefaultPollBatchSize)
	viper.SetDefault("correlation.poll_backoff_initial", constants.DefaultPollBackoffInitial)
	viper.SetDefault("correlation.poll_backoff_max", constants.DefaultPollBackoffMax)

	viper.SetDefault("inflight.store", "memory")
	viper.SetDefault("inflight.key_prefix", constants.CacheKeyPrefixInFlight)
	viper.SetDefault("inflight.grace", constants.DefaultInFlightGrace)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func bindEnvVariables() {
	viper.BindEnv("broker.work", "BROKER_WORK_TYPE")
	viper.BindEnv("broker.reply", "BROKER_REPLY_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.redis_streams.key_prefix", "BROKER_REDIS_STREAMS_KEY_PREFIX")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("correlation.work_queue", "CORRELATION_WORK_QUEUE")
	viper.BindEnv("correlation.reply_queue", "CORRELATION_REPLY_QUEUE")
	viper.BindEnv("correlation.timeout", "CORRELATION_TIMEOUT")
	viper.BindEnv("correlation.poll_batch_size", "CORRELATION_POLL_BATCH_SIZE")

	viper.BindEnv("inflight.store", "INFLIGHT_STORE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

// UsesRedis reports whether any configured component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Broker.Work == "redis" || c.Broker.Reply == "redis" || c.InFlight.Store == "redis"
}
