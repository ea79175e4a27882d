package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tempox/tx-mes-cli/internal/bootstrap"
)

type WatchOptions struct {
	*RootOptions
	Path          string
	ResourceID    int64
	PointType     string
	RetentionDays int
	Interval      time.Duration
	RetryInterval time.Duration
	FSEvents      bool
	Once          bool

	// apontar-csv only
	Layout     string
	Action     string
	Separator  string
	CodeColumn int
	NoHeader   bool
}

// NewWatchCommand creates the watcher subcommand of a preset.
func NewWatchCommand(rootOpts *RootOptions, preset bootstrap.Preset) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   preset.Name,
		Short: preset.Short,
		Long: fmt.Sprintf(`%s.

Monitora a origem a cada %s. Cada registro enviado é gravado no arquivo
<nome>%s e cada falha no arquivo <nome>%s com a mensagem do erro. As falhas mais
novas que --dias-reapontamento são reenviadas a cada --intervalo-reapontamento;
o valor 0 em qualquer um dos dois desativa o reenvio.`,
			preset.Short, preset.PollInterval, preset.Suffixes.Processed, preset.Suffixes.Quarantine),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts, preset)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Path, "caminho-arquivo", "", "arquivo ou diretório monitorado")
	flags.Int64Var(&opts.ResourceID, "id-recurso", 0, "id do recurso das leituras")
	flags.StringVar(&opts.PointType, "tipo-apontamento", "", "INICIO_OU_FIM ou INICIO_E_FIM (padrão INICIO_OU_FIM)")
	flags.IntVar(&opts.RetentionDays, "dias-reapontamento", 0, fmt.Sprintf("idade máxima, em dias, das falhas reenviadas (padrão %d)", preset.RetentionDays))
	flags.DurationVar(&opts.Interval, "intervalo", 0, fmt.Sprintf("intervalo entre ciclos (padrão %s)", preset.PollInterval))
	flags.DurationVar(&opts.RetryInterval, "intervalo-reapontamento", 0, fmt.Sprintf("intervalo entre reenvios das falhas (padrão %s)", preset.RetryInterval))
	flags.BoolVar(&opts.FSEvents, "eventos-arquivo", false, "também acorda o ciclo em eventos do sistema de arquivos")
	flags.BoolVar(&opts.Once, "uma-vez", false, "executa um ciclo e um reenvio e encerra")

	if preset.Name == "apontar-csv" {
		flags.StringVar(&opts.Layout, "layout", "", "organização da origem: single, flat, year ou batch (padrão flat)")
		flags.StringVar(&opts.Action, "acao", "", "leitura ou plano (padrão leitura)")
		flags.StringVar(&opts.Separator, "sep", ",", "separador de campos do csv")
		flags.IntVar(&opts.CodeColumn, "coluna-codigo", 1, "coluna do código, a partir de 0")
		flags.BoolVar(&opts.NoHeader, "sem-cabecalho", false, "o csv não tem linha de cabeçalho")
	}

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, preset bootstrap.Preset) error {
	settings := bootstrap.WatchSettings{
		Path:         opts.Path,
		ResourceID:   opts.ResourceID,
		PointType:    opts.PointType,
		PollInterval: opts.Interval,
		Layout:       opts.Layout,
		Action:       opts.Action,
		NoHeader:     opts.NoHeader,
	}
	if cmd.Flags().Changed("intervalo-reapontamento") {
		interval := opts.RetryInterval
		settings.RetryInterval = &interval
	}
	if cmd.Flags().Changed("dias-reapontamento") {
		days := opts.RetentionDays
		settings.RetentionDays = &days
	}
	if cmd.Flags().Changed("eventos-arquivo") {
		enabled := opts.FSEvents
		settings.FSEvents = &enabled
	}
	if cmd.Flags().Changed("sep") {
		sep, err := parseSeparator(opts.Separator)
		if err != nil {
			return WrapExitError(ExitStartup, "invalid --sep", err)
		}
		settings.Delimiter = sep
	}
	if cmd.Flags().Changed("coluna-codigo") {
		column := opts.CodeColumn
		settings.CodeColumn = &column
	}

	app, err := startApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	watcher, err := app.NewWatcher(preset, settings)
	if err != nil {
		return WrapExitError(ExitStartup, "invalid watcher settings", err)
	}

	ctx := cmd.Context()
	if opts.Once {
		report, err := watcher.RunCycle(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "cycle failed", err)
		}
		retry, err := watcher.RetryPass(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "retry pass failed", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d processados, %d com erro, %d ignorados, %d recuperados\n",
			report.Processed, report.Quarantined, report.Skipped, retry.Recovered)
		return err
	}

	if err := watcher.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "watcher stopped", err)
	}
	return nil
}
