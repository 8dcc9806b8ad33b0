package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkrelay_jobs_total",
			Help: "Total number of /sendlink jobs by outcome (count)",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkrelay_job_duration_ms",
			Help:    "End to end duration of /sendlink jobs in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"outcome"},
	)

	CorrelationPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlation_polls_total",
			Help: "Total number of reply queue polls by result (count)",
		},
		[]string{"queue", "result"},
	)

	CorrelationUnmatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlation_unmatched_messages_total",
			Help: "Total number of reply messages seen that belong to another token (count)",
		},
		[]string{"queue"},
	)

	CorrelationDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "correlation_duplicate_replies_total",
			Help: "Total number of duplicate replies discarded after a match (count)",
		},
		[]string{"queue"},
	)

	MessagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_sent_total",
			Help: "Total number of messages sent by transport (count)",
		},
		[]string{"transport", "queue", "status"},
	)

	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_received_total",
			Help: "Total number of messages received by transport (count)",
		},
		[]string{"transport", "queue"},
	)

	MessagesAcknowledgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_acknowledged_total",
			Help: "Total number of messages acknowledged by transport (count)",
		},
		[]string{"transport", "queue", "status"},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_send_duration_ms",
			Help:    "Duration of message sends in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"transport", "queue"},
	)

	MessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_size_bytes",
			Help:    "Size of message payloads in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"transport", "queue", "direction"},
	)

	InFlightJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "linkrelay_inflight_jobs",
			Help: "Number of jobs currently waiting for a reply on this instance (count)",
		},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			JobsTotal,
			JobDuration,
			CorrelationPollsTotal,
			CorrelationUnmatchedTotal,
			CorrelationDuplicatesTotal,
			MessagesSentTotal,
			MessagesReceivedTotal,
			MessagesAcknowledgedTotal,
			SendDuration,
			MessageSizeBytes,
			InFlightJobs,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
		)
	})
}

func ObserveJob(outcome string, duration time.Duration) {
	JobsTotal.WithLabelValues(outcome).Inc()
	JobDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncPoll(queue, result string) {
	CorrelationPollsTotal.WithLabelValues(queue, result).Inc()
}

func AddUnmatched(queue string, n int) {
	if n > 0 {
		CorrelationUnmatchedTotal.WithLabelValues(queue).Add(float64(n))
	}
}

func IncDuplicate(queue string) {
	CorrelationDuplicatesTotal.WithLabelValues(queue).Inc()
}

func ObserveSend(transport, queue, status string, sizeBytes int, duration time.Duration) {
	MessagesSentTotal.WithLabelValues(transport, queue, status).Inc()
	SendDuration.WithLabelValues(transport, queue).Observe(float64(duration.Milliseconds()))
	if status == "success" {
		MessageSizeBytes.WithLabelValues(transport, queue, "out").Observe(float64(sizeBytes))
	}
}

func ObserveReceived(transport, queue string, sizeBytes int) {
	MessagesReceivedTotal.WithLabelValues(transport, queue).Inc()
	MessageSizeBytes.WithLabelValues(transport, queue, "in").Observe(float64(sizeBytes))
}

func IncAcknowledged(transport, queue, status string) {
	MessagesAcknowledgedTotal.WithLabelValues(transport, queue, status).Inc()
}
