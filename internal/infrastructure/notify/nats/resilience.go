package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Class{}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.Class{Transient: true, Trips: true}
	}
	return resilience.Class{Trips: true}
}

func wrapTransportIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTransport) {
		return err
	}
	if classifyNATSError(err).Transient {
		return domain.WrapError(domain.ErrTransport, "nats publish", err)
	}
	return err
}
