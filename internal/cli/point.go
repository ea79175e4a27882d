package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
)

type PointOptions struct {
	*RootOptions
	CodigoLayout string
	PointType    string
}

// NewPointCommand creates apontar-plano-de-corte.
func NewPointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apontar-plano-de-corte",
		Short: "Aponta um plano de corte no MES",
		Long: `Aponta o início ou o fim de um plano de corte.

Com INICIO_E_FIM o plano é apontado duas vezes, com um intervalo entre os
eventos. Um plano que o MES informa como já finalizado é tratado como sucesso.

Exemplo:
  tx-mes-cli --host http://localhost:6543/ -u operador -p segredo \
    apontar-plano-de-corte --cod-layout 1234I12345L12- --tipo-apontamento INICIO_OU_FIM`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoint(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.CodigoLayout, "cod-layout", "", "código do layout que será apontado (obrigatório)")
	cmd.Flags().StringVar(&opts.PointType, "tipo-apontamento", "", "tipo do apontamento: INICIO_OU_FIM ou INICIO_E_FIM (obrigatório)")
	_ = cmd.MarkFlagRequired("cod-layout")
	_ = cmd.MarkFlagRequired("tipo-apontamento")

	return cmd
}

func runPoint(cmd *cobra.Command, opts *PointOptions) error {
	pointType, ok := domain.ParsePointType(opts.PointType)
	if !ok {
		return NewExitError(ExitStartup, fmt.Sprintf("invalid --tipo-apontamento %q: must be INICIO_OU_FIM or INICIO_E_FIM", opts.PointType))
	}

	app, err := startApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.NewPlanPointer().Point(cmd.Context(), opts.CodigoLayout, pointType); err != nil {
		app.Logger.Error("point_plan_failed", "codigo_layout", opts.CodigoLayout, "error", err)
		return WrapExitError(ExitFailure, "apontamento falhou", err)
	}
	app.Logger.Info("point_plan_done", "codigo_layout", opts.CodigoLayout, "point_type", pointType)
	return nil
}
