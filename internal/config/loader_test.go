package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
  read_timeout_seconds: 10s
  write_timeout_seconds: 45s
broker:
  work: kafka
  reply: redis
  kafka:
    brokers: ["kafka-1:9092"]
redis:
  host: redis
  port: 6379
correlation:
  timeout: 12s
  poll_batch_size: 50
inflight:
  store: redis
validation:
  rules:
    - field: profileId
      expression: 'profile_id.startsWith("https://")'
      message: "'Profile Id' must be an https link."
rate_limit:
  enabled: true
  rps: 5
  burst: 10
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Server.WriteTimeoutSeconds)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, 12*time.Second, cfg.Correlation.Timeout)
	assert.Equal(t, 50, cfg.Correlation.PollBatchSize)
	require.Len(t, cfg.Validation.Rules, 1)
	assert.Equal(t, "profileId", cfg.Validation.Rules[0].Field)
	assert.True(t, cfg.RateLimit.Enabled)

	// defaults
	assert.Equal(t, "linkedin-profile-requests", cfg.Correlation.WorkQueue)
	assert.Equal(t, "linkedin-profile-responses", cfg.Correlation.ReplyQueue)
	assert.Equal(t, 100*time.Millisecond, cfg.Correlation.PollBackoffInitial)
	assert.Equal(t, "linkrelay:stream:", cfg.Broker.Redis.KeyPrefix)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("CORRELATION_REPLY_QUEUE", "replies-from-env")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "replies-from-env", cfg.Correlation.ReplyQueue)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
server:
  port: 8080
broker:
  work: kafka
  reply: kafka
  kafka:
    brokers: ["k:9092"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.reply")
}
