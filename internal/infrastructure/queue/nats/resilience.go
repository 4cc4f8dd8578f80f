package nats

import (
	"context"
	"errors"
	"slices"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/resilience"
)

// transientErrors clear up once the client reconnects.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrNoResponders,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func isTransient(err error) bool {
	return resilience.IsCircuitOpen(err) || slices.ContainsFunc(transientErrors, func(target error) bool {
		return errors.Is(err, target)
	})
}

// classifyNATSError leaves caller cancellation out of breaker statistics.
func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case isTransient(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// wrapTemporaryIfNeeded tags transient publish failures so callers can retry
// the whole stage event later.
func wrapTemporaryIfNeeded(subject string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if isTransient(err) {
		return domain.WrapError(domain.ErrTemporary, "nats publish "+subject, err)
	}
	return err
}
