package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkrelay/internal/broker"
	"linkrelay/internal/config"
	"linkrelay/internal/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Broker: config.BrokerConfig{
			Work:  broker.TransportMemory,
			Reply: broker.TransportMemory,
		},
		InFlight: config.InFlightConfig{Store: "memory"},
	}
}

func TestInitBroker_MemorySharesOneBroker(t *testing.T) {
	base := NewBase(memoryConfig(), logger.NopLogger())
	require.NoError(t, base.InitBroker(broker.Dependencies{}))
	assert.Nil(t, base.Breaker)

	ctx := context.Background()
	s, err := base.Producer.OpenSender(ctx, "work")
	require.NoError(t, err)
	require.NoError(t, s.Send(ctx, broker.Message{Payload: []byte("x"), CorrelationID: "t"}))
	require.NoError(t, s.Close())

	r, err := base.Consumer.OpenReceiver(ctx, "work")
	require.NoError(t, err)
	defer r.Close()
	got, err := r.ReceiveBatch(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t", got[0].CorrelationID)

	require.NoError(t, base.Shutdown(ctx, nil))
}

func TestInitBroker_WrapsProducerInBreaker(t *testing.T) {
	cfg := memoryConfig()
	cfg.CircuitBreaker = config.CircuitBreakerConfig{Enabled: true, MaxRequests: 1}

	base := NewBase(cfg, logger.NopLogger())
	require.NoError(t, base.InitBroker(broker.Dependencies{}))
	require.NotNil(t, base.Breaker)
	assert.Same(t, base.Breaker, base.Producer)
	assert.False(t, base.Breaker.IsOpen())
}

func TestInitBroker_RejectsKafkaReply(t *testing.T) {
	cfg := memoryConfig()
	cfg.Broker.Reply = broker.TransportKafka

	base := NewBase(cfg, logger.NopLogger())
	err := base.InitBroker(broker.Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, broker.ErrUnsupported))
}

func TestShutdown_RunsAdditionalFirst(t *testing.T) {
	base := NewBase(memoryConfig(), logger.NopLogger())
	require.NoError(t, base.InitBroker(broker.Dependencies{}))

	called := false
	err := base.Shutdown(context.Background(), func(ctx context.Context) []error {
		called = true
		return []error{errors.New("server")}
	})
	assert.True(t, called)
	assert.ErrorContains(t, err, "server")
}

func TestInitRedis_SkippedWhenUnused(t *testing.T) {
	dc := NewDatabaseConnector(memoryConfig(), logger.NopLogger())
	client, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.Empty(t, dc.ShutdownDatabases(context.Background(), nil))
}
