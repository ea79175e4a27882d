package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
)

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

// Publisher sends submission outcomes as JSON messages.
type Publisher struct {
	conn     *nats.Conn
	publish  func(subject string, data []byte) error
	subject  string
	executor *resilience.Executor
}

func New(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("tx-mes-cli"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	p := newPublisher(conn.Publish, subject, options.ResilienceExecutor)
	p.conn = conn
	return p, nil
}

func newPublisher(publish func(string, []byte) error, subject string, executor *resilience.Executor) *Publisher {
	return &Publisher{publish: publish, subject: subject, executor: executor}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.conn.Close()
		return fmt.Errorf("nats flush: %w", err)
	}
	p.conn.Close()
	return nil
}

func (p *Publisher) Notify(ctx context.Context, outcome domain.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.publish(p.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Do(ctx, resilience.Call{
			Operation:  "nats.publish",
			Idempotent: true,
			Classify:   classifyNATSError,
		}, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTransportIfNeeded(err)
	}
	return nil
}
