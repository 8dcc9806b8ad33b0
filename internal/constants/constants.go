package constants

import "time"

const (
	ServiceName = "linkrelay"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 60 * time.Second
)

const (
	DefaultWorkQueue  = "linkedin-profile-requests"
	DefaultReplyQueue = "linkedin-profile-responses"
)

const (
	DefaultCorrelationTimeout = 30 * time.Second
	DefaultPollBatchSize      = 100
	DefaultPollBackoffInitial = 100 * time.Millisecond
	DefaultPollBackoffMax     = time.Second
)

const (
	StreamKeyPrefix        = "linkrelay:stream:"
	DefaultStreamMaxLen    = 10000
	DefaultStreamRetention = 10 * time.Minute
)

const (
	CacheKeyPrefixInFlight = "linkrelay:inflight:"
	DefaultInFlightGrace   = 5 * time.Second
)

const (
	MaxProfileIDLength    = 2048
	MaxPartitionKeyLength = 128
)

const (
	ShutdownTimeout = 5 * time.Second
	HealthTimeout   = 5 * time.Second
)

const (
	NoResponseMessage = "no response available"
)
