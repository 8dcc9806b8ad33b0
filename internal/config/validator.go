package config

import (
	"fmt"
	"strings"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if cfg.UsesRedis() {
		if err := validateRedis(cfg.Redis); err != nil {
			errors = append(errors, err)
		}
	}

	if err := validateCorrelation(cfg.Correlation); err != nil {
		errors = append(errors, err)
	}

	if err := validateTimeouts(cfg); err != nil {
		errors = append(errors, err)
	}

	if err := validateInFlight(cfg.InFlight); err != nil {
		errors = append(errors, err)
	}

	if err := validateRules(cfg.Validation); err != nil {
		errors = append(errors, err)
	}

	if err := validateRateLimit(cfg.RateLimit); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Work {
	case "kafka":
		if err := validateKafka(cfg.Kafka); err != nil {
			return err
		}
	case "redis", "memory":
	case "":
		return &ValidationError{
			Field:   "broker.work",
			Message: "work queue transport is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.work",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, redis, memory)", cfg.Work),
		}
	}

	switch cfg.Reply {
	case "redis", "memory":
	case "kafka":
		return &ValidationError{
			Field:   "broker.reply",
			Message: "kafka cannot serve the reply queue: offset commits cannot acknowledge single messages (supported: redis, memory)",
		}
	case "":
		return &ValidationError{
			Field:   "broker.reply",
			Message: "reply queue transport is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.reply",
			Message: fmt.Sprintf("unknown broker type: %s (supported: redis, memory)", cfg.Reply),
		}
	}

	if (cfg.Work == "memory") != (cfg.Reply == "memory") {
		return &ValidationError{
			Field:   "broker.work",
			Message: "the memory broker only reaches workers in the same process; use it for both queues",
		}
	}

	if cfg.Redis.MaxLen < 0 {
		return &ValidationError{
			Field:   "broker.redis_streams.max_len",
			Message: "max_len must be non-negative",
		}
	}

	if cfg.Redis.Retention < 0 {
		return &ValidationError{
			Field:   "broker.redis_streams.retention",
			Message: "retention must be non-negative",
		}
	}

	return nil
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	switch cfg.RequiredAcks {
	case -1, 0, 1:
	default:
		return &ValidationError{
			Field:   "broker.kafka.required_acks",
			Message: fmt.Sprintf("required_acks must be -1, 0 or 1, got %d", cfg.RequiredAcks),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateCorrelation(cfg CorrelationConfig) error {
	if strings.TrimSpace(cfg.WorkQueue) == "" {
		return &ValidationError{
			Field:   "correlation.work_queue",
			Message: "work queue name is required",
		}
	}

	if strings.TrimSpace(cfg.ReplyQueue) == "" {
		return &ValidationError{
			Field:   "correlation.reply_queue",
			Message: "reply queue name is required",
		}
	}

	if cfg.WorkQueue == cfg.ReplyQueue {
		return &ValidationError{
			Field:   "correlation.reply_queue",
			Message: "reply queue must differ from the work queue",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "correlation.timeout",
			Message: "timeout must be positive",
		}
	}

	if cfg.PollBatchSize <= 0 {
		return &ValidationError{
			Field:   "correlation.poll_batch_size",
			Message: "poll_batch_size must be positive",
		}
	}

	if cfg.PollBackoffInitial <= 0 {
		return &ValidationError{
			Field:   "correlation.poll_backoff_initial",
			Message: "poll_backoff_initial must be positive",
		}
	}

	if cfg.PollBackoffMax < cfg.PollBackoffInitial {
		return &ValidationError{
			Field:   "correlation.poll_backoff_max",
			Message: "poll_backoff_max must be greater than or equal to poll_backoff_initial",
		}
	}

	return nil
}

// validateTimeouts checks the correlation timeout against the settings that
// bound it from outside: the HTTP write deadline, which must leave room to
// send the response, and the reply queue retention, which must keep a reply
// alive for as long as a request can wait for it.
func validateTimeouts(cfg *Config) error {
	timeout := cfg.Correlation.Timeout
	if timeout <= 0 {
		return nil
	}

	if cfg.Server.WriteTimeoutSeconds > 0 && timeout >= cfg.Server.WriteTimeoutSeconds {
		return &ValidationError{
			Field: "correlation.timeout",
			Message: fmt.Sprintf("timeout %s must be below server.write_timeout_seconds %s",
				timeout, cfg.Server.WriteTimeoutSeconds),
		}
	}

	var retention time.Duration
	var field string
	switch cfg.Broker.Reply {
	case "redis":
		retention, field = cfg.Broker.Redis.Retention, "broker.redis_streams.retention"
	case "memory":
		retention, field = cfg.Broker.Memory.Retention, "broker.memory.retention"
	}
	if retention > 0 && retention <= timeout {
		return &ValidationError{
			Field: field,
			Message: fmt.Sprintf("retention %s must exceed correlation.timeout %s",
				retention, timeout),
		}
	}

	return nil
}

func validateInFlight(cfg InFlightConfig) error {
	validStores := map[string]bool{
		"redis": true, "memory": true,
	}
	if !validStores[strings.ToLower(cfg.Store)] {
		return &ValidationError{
			Field:   "inflight.store",
			Message: fmt.Sprintf("invalid store: %s (valid: redis, memory)", cfg.Store),
		}
	}

	if cfg.Grace < 0 {
		return &ValidationError{
			Field:   "inflight.grace",
			Message: "grace must be non-negative",
		}
	}

	return nil
}

func validateRules(cfg ValidationConfig) error {
	validFields := map[string]bool{
		"profileId": true, "partitionKey": true,
	}
	for i, rule := range cfg.Rules {
		if rule.Expression == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("validation.rules[%d].expression", i),
				Message: "expression is required",
			}
		}
		if rule.Message == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("validation.rules[%d].message", i),
				Message: "message is required",
			}
		}
		if rule.Field != "" && !validFields[rule.Field] {
			return &ValidationError{
				Field:   fmt.Sprintf("validation.rules[%d].field", i),
				Message: fmt.Sprintf("invalid field: %s (valid: profileId, partitionKey)", rule.Field),
			}
		}
	}
	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RPS <= 0 {
		return &ValidationError{
			Field:   "rate_limit.rps",
			Message: "rps must be positive",
		}
	}

	if cfg.Burst <= 0 {
		return &ValidationError{
			Field:   "rate_limit.burst",
			Message: "burst must be positive",
		}
	}

	return nil
}
