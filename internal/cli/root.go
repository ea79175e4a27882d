package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempox/tx-mes-cli/internal/bootstrap"
	"github.com/tempox/tx-mes-cli/internal/config"
)

// RootOptions holds the global flags shared by every command.
type RootOptions struct {
	Version string

	Host        string
	User        string
	Password    string
	Timeout     float64
	LogFile     string
	LogLevel    string
	LogFormat   string
	ConfigFile  string
	MetricsAddr string
	NATSURL     string
	NATSSubject string
	RateLimit   float64
}

// NewRootCommand creates the tx-mes-cli command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:           "tx-mes-cli",
		Short:         "Realiza a integração com o sistema MES da TempoX",
		Long:          "Integra arquivos de máquinas CNC (CSV, XML Nanxing, .pro SCM Pratika, .tx SCM) com a API do MES da TempoX.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.Host, "host", "", "endereço da API, ex.: http://localhost:6543/ (TX_HOST)")
	flags.StringVarP(&opts.User, "user", "u", "", "usuário da API (TX_USER)")
	flags.StringVarP(&opts.Password, "password", "p", "", "senha do usuário (TX_PASSWORD)")
	flags.Float64Var(&opts.Timeout, "timeout", 0, "tempo limite das requisições HTTP, em segundos (TX_TIMEOUT)")
	flags.StringVar(&opts.LogFile, "log-file", "", "arquivo de log, anexado a cada execução (TX_LOG_FILE)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "nível de log: debug, info, warn, error (TX_LOG_LEVEL)")
	flags.StringVar(&opts.LogFormat, "log-format", "", "formato do log: text ou json (TX_LOG_FORMAT)")
	flags.StringVar(&opts.ConfigFile, "config", "", "arquivo YAML de configuração")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "endereço do endpoint Prometheus, ex.: :9090 (TX_METRICS_ADDR)")
	flags.StringVar(&opts.NATSURL, "nats-url", "", "servidor NATS para publicar os resultados (TX_NATS_URL)")
	flags.StringVar(&opts.NATSSubject, "nats-subject", "", "assunto NATS dos resultados (TX_NATS_SUBJECT)")
	flags.Float64Var(&opts.RateLimit, "rate-limit", 0, "máximo de requisições por segundo ao MES, 0 sem limite (TX_RATE_LIMIT)")

	cmd.AddCommand(NewPointCommand(opts))
	cmd.AddCommand(NewProjectCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	for _, preset := range bootstrap.Presets() {
		cmd.AddCommand(NewWatchCommand(opts, preset))
	}
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// loadConfig layers the environment, the optional YAML file and the flags the
// user set explicitly.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (config.Config, error) {
	cfg := config.Load()
	if opts.ConfigFile != "" {
		loaded, err := config.LoadFile(opts.ConfigFile, cfg)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = opts.Host
	}
	if flags.Changed("user") {
		cfg.User = opts.User
	}
	if flags.Changed("password") {
		cfg.Password = opts.Password
	}
	if flags.Changed("timeout") {
		cfg.Timeout = time.Duration(opts.Timeout * float64(time.Second))
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.LogFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.LogFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("nats-url") {
		cfg.NATSURL = opts.NATSURL
	}
	if flags.Changed("nats-subject") {
		cfg.NATSSubject = opts.NATSSubject
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = opts.RateLimit
	}
	return cfg, nil
}

// startApp loads the configuration and wires the application. Every failure
// is a startup failure.
func startApp(cmd *cobra.Command, opts *RootOptions) (*bootstrap.App, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, WrapExitError(ExitStartup, "invalid configuration", err)
	}
	app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
		Version: opts.Version,
		Stdout:  cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, WrapExitError(ExitStartup, "startup failed", err)
	}
	return app, nil
}

func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Mostra a versão",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tx-mes-cli %s\n", opts.Version)
			return err
		},
	}
}
