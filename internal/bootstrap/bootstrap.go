package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tempox/tx-mes-cli/internal/config"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/mes"
	natsnotify "github.com/tempox/tx-mes-cli/internal/infrastructure/notify/nats"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/resilience"
	"github.com/tempox/tx-mes-cli/internal/observability/logging"
	"github.com/tempox/tx-mes-cli/internal/observability/metrics"
)

const serviceName = "tx-mes-cli"

type Options struct {
	Version string
	Stdout  io.Writer
	// HTTPTransport replaces the default transport under the metrics
	// instrumentation.
	HTTPTransport http.RoundTripper
}

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.WatcherMetrics

	Client   *mes.Client
	Notifier ports.OutcomeNotifier

	closers []func()
}

// New wires the shared components of every command and performs the initial
// MES login. Any error here is a startup failure.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Options{
		Service: serviceName,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		File:    cfg.LogFile,
		MaxSize: cfg.LogMaxSizeMB,
		Backups: cfg.LogMaxBackups,
		Stdout:  opts.Stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	app := &App{Config: cfg, Logger: logger}
	app.closers = append(app.closers, func() { _ = logCloser.Close() })

	app.Metrics = metrics.NewWatcherMetrics(serviceName)
	executor := resilience.NewExecutor(cfg.Resilience, logger, app.Metrics)

	transport := opts.HTTPTransport
	if transport == nil {
		transport = http.DefaultTransport
	}
	app.Client = mes.New(mes.Options{
		BaseURL:    cfg.Host,
		User:       cfg.User,
		Password:   cfg.Password,
		Timeout:    cfg.Timeout,
		Version:    opts.Version,
		RateLimit:  cfg.RateLimit,
		Executor:   executor,
		HTTPClient: &http.Client{Timeout: cfg.Timeout, Transport: app.Metrics.InstrumentTransport(transport)},
		Logger:     logger,
	})

	if _, err := app.Client.Login(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("initial login: %w", err)
	}
	logger.Info("mes_login_ok", "host", cfg.Host, "user", cfg.User)

	if cfg.NATSURL != "" {
		publisher, err := natsnotify.New(cfg.NATSURL, cfg.NATSSubject, natsnotify.Options{
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init outcome notifier: %w", err)
		}
		app.Notifier = publisher
		app.closers = append(app.closers, func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("nats_close_failed", "error", err)
			}
		})
	}

	if cfg.MetricsAddr != "" {
		app.serveMetrics(cfg.MetricsAddr)
	}
	return app, nil
}

func (a *App) serveMetrics(addr string) {
	server := &http.Server{
		Addr:              addr,
		Handler:           a.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.Logger.Info("metrics_listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics_server_failed", "error", err)
		}
	}()
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.Logger.Warn("metrics_shutdown_failed", "error", err)
		}
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
