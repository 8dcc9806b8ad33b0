package linkrelay

import (
	"context"
	"time"

	"linkrelay/internal/config"
	"linkrelay/internal/constants"
	"linkrelay/internal/correlation"
	"linkrelay/internal/inflight"
	"linkrelay/internal/logger"
	"linkrelay/pkg/circuitbreaker"
	"linkrelay/pkg/errors"
	"linkrelay/pkg/logging"
	"linkrelay/pkg/metrics"
)

// Service runs one job: reserve its token, dispatch it, wait for the reply.
type Service struct {
	dispatcher *correlation.Dispatcher
	correlator *correlation.Correlator
	registry   inflight.Registry
	newToken   correlation.Generator
	cfg        config.CorrelationConfig
	grace      time.Duration
	logger     logger.Logger
}

type ServiceOption func(*Service)

func WithTokenGenerator(g correlation.Generator) ServiceOption {
	return func(s *Service) {
		s.newToken = g
	}
}

func NewService(
	dispatcher *correlation.Dispatcher,
	correlator *correlation.Correlator,
	registry inflight.Registry,
	cfg config.CorrelationConfig,
	grace time.Duration,
	log logger.Logger,
	opts ...ServiceOption,
) *Service {
	if grace <= 0 {
		grace = constants.DefaultInFlightGrace
	}
	s := &Service{
		dispatcher: dispatcher,
		correlator: correlator,
		registry:   registry,
		newToken:   correlation.NewToken,
		cfg:        cfg,
		grace:      grace,
		logger:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendLink runs the job described by req, which must already be valid. A
// missing reply is not an error: the response then carries Message instead
// of Data.
func (s *Service) SendLink(ctx context.Context, req SendLinkRequest) (SendLinkResponse, error) {
	start := time.Now()

	token := req.PartitionKey
	if token == "" {
		token = s.newToken()
	}
	ctx = logging.WithCorrelationID(ctx, token)

	reserved, err := s.registry.Reserve(ctx, token, s.cfg.Timeout+s.grace)
	if err != nil {
		metrics.ObserveJob("error", time.Since(start))
		if circuitbreaker.IsRejected(err) {
			return SendLinkResponse{}, errors.ErrUnavailable.WithCause(err)
		}
		return SendLinkResponse{}, errors.ErrInternal.WithCause(err)
	}
	if !reserved {
		metrics.ObserveJob("conflict", time.Since(start))
		return SendLinkResponse{}, errors.ErrConflict.
			WithMessage("partition key is already in use by an outstanding request").
			WithDetail("partitionKey", token)
	}
	defer func() {
		if err := s.registry.Release(context.WithoutCancel(ctx), token); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to release correlation token", "error", err)
		}
	}()

	metrics.InFlightJobs.Inc()
	defer metrics.InFlightJobs.Dec()

	job := correlation.Job{ProfileReference: req.ProfileID, CorrelationToken: token}
	if err := s.dispatcher.Dispatch(ctx, job, s.cfg.WorkQueue); err != nil {
		metrics.ObserveJob("dispatch_failed", time.Since(start))
		if circuitbreaker.IsRejected(err) {
			return SendLinkResponse{}, errors.ErrUnavailable.WithCause(err)
		}
		return SendLinkResponse{}, errors.ErrTransport.WithCause(err)
	}

	out := s.correlator.Correlate(ctx, token, s.cfg.ReplyQueue, s.cfg.Timeout, s.cfg.PollBatchSize)
	metrics.ObserveJob(out.State.String(), time.Since(start))

	switch out.State {
	case correlation.Matched:
		data := string(out.Payload)
		return SendLinkResponse{Data: &data, PartitionKey: token}, nil
	case correlation.TimedOut:
		return SendLinkResponse{Message: constants.NoResponseMessage, PartitionKey: token}, nil
	default:
		return SendLinkResponse{}, errors.ErrTransport.WithCause(out.Err)
	}
}
