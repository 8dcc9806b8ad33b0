package correlation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"linkrelay/internal/broker"
	"linkrelay/internal/constants"
	"linkrelay/internal/logger"
	"linkrelay/pkg/tracing"
)

type Dispatcher struct {
	producer broker.Producer
	logger   logger.Logger
}

func NewDispatcher(producer broker.Producer, log logger.Logger) *Dispatcher {
	return &Dispatcher{producer: producer, logger: log}
}

// Dispatch sends job to workChannel exactly once through a scoped sender.
// Transport errors are returned wrapped and never retried: the worker's side
// effect is not known to be idempotent.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job, workChannel string) (err error) {
	ctx, span := tracing.GetTracer(constants.ServiceName).Start(ctx, "correlation.dispatch")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "dispatch failed")
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("messaging.destination.name", workChannel),
		attribute.String("messaging.message.conversation_id", job.CorrelationToken),
	)

	msg := broker.Message{
		Payload:       []byte(job.ProfileReference),
		CorrelationID: job.CorrelationToken,
		Headers:       tracing.InjectHeaders(ctx, nil),
	}

	sender, err := d.producer.OpenSender(ctx, workChannel)
	if err != nil {
		return fmt.Errorf("failed to open sender for %s: %w", workChannel, err)
	}

	if err := sender.Send(ctx, msg); err != nil {
		if closeErr := sender.Close(); closeErr != nil {
			d.logger.WarnwCtx(ctx, "Failed to close sender after send error",
				"channel", workChannel,
				"error", closeErr,
			)
		}
		return fmt.Errorf("failed to send job to %s: %w", workChannel, err)
	}

	if err := sender.Close(); err != nil {
		return fmt.Errorf("failed to close sender for %s: %w", workChannel, err)
	}

	d.logger.InfowCtx(ctx, "Job dispatched",
		"channel", workChannel,
	)
	return nil
}
