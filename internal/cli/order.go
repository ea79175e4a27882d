package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type OrderOptions struct {
	*RootOptions
	OrdersFile    string
	RoutesFile    string
	UniqueIDsFile string
	Separator     string
}

// NewOrderCommand creates nova-ordem.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OrderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "nova-ordem",
		Short: "Cria novas ordens no MES",
		Long: `Cria ordens de produção a partir de três tabelas (CSV ou .xlsx): ordens,
roteiros e ids únicos. Cada roteiro e id único é ligado à sua ordem pelo
id_ordem; uma linha que cite uma ordem ausente da tabela de ordens aborta o
envio.

Sem --sep o separador de cada CSV é detectado pela linha de cabeçalho.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOrder(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.OrdersFile, "ordens-file", "", "arquivo com as informações de cada ordem (obrigatório)")
	cmd.Flags().StringVar(&opts.RoutesFile, "roteiros-file", "", "arquivo com os roteiros de cada ordem (obrigatório)")
	cmd.Flags().StringVar(&opts.UniqueIDsFile, "ids-unicos-file", "", "arquivo com os ids únicos de cada ordem (obrigatório)")
	cmd.Flags().StringVar(&opts.Separator, "sep", "", "separador de campos dos arquivos csv")
	_ = cmd.MarkFlagRequired("ordens-file")
	_ = cmd.MarkFlagRequired("roteiros-file")
	_ = cmd.MarkFlagRequired("ids-unicos-file")

	return cmd
}

func runOrder(cmd *cobra.Command, opts *OrderOptions) error {
	var sep rune
	if cmd.Flags().Changed("sep") {
		var err error
		if sep, err = parseSeparator(opts.Separator); err != nil {
			return WrapExitError(ExitStartup, "invalid --sep", err)
		}
	}
	orders, err := readRows(opts.OrdersFile, sep)
	if err != nil {
		return WrapExitError(ExitStartup, "read orders", err)
	}
	routes, err := readRows(opts.RoutesFile, sep)
	if err != nil {
		return WrapExitError(ExitStartup, "read routes", err)
	}
	uniqueIDs, err := readRows(opts.UniqueIDsFile, sep)
	if err != nil {
		return WrapExitError(ExitStartup, "read unique ids", err)
	}

	app, err := startApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.NewOrderImporter().Import(cmd.Context(), orders, routes, uniqueIDs)
	if err != nil {
		app.Logger.Error("orders_create_failed", "error", err)
		return WrapExitError(ExitFailure, "envio das ordens falhou", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d ordens enviadas (%d roteiros, %d ids únicos)\n", report.Orders, report.Routes, report.UniqueIDs)
	return err
}
