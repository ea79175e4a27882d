package cli

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/tempox/tx-mes-cli/internal/core/ports"
	"github.com/tempox/tx-mes-cli/internal/core/usecase"
	"github.com/tempox/tx-mes-cli/internal/infrastructure/tabular"
)

type ProjectOptions struct {
	*RootOptions
	LayoutsFile     string
	PartsFile       string
	Separator       string
	FiguresDir      string
	CheckDuplicates bool
}

// NewProjectCommand creates novo-plano-de-corte.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "novo-plano-de-corte",
		Short: "Cria novos planos de corte no MES",
		Long: `Cria um projeto de planos de corte a partir de uma tabela de layouts e uma
tabela de peças (CSV ou .xlsx). As peças são agrupadas pelo codigo_layout e as
peças de recorte são apenas contadas.

Com --verificar-duplicidade cada id_unico_peca é consultado no MES antes do
envio, e o projeto não é criado se alguma peça já estiver em um plano.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProject(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LayoutsFile, "layouts-file", "", "arquivo com as informações de cada layout (obrigatório)")
	cmd.Flags().StringVar(&opts.PartsFile, "parts-file", "", "arquivo com as peças de cada layout (obrigatório)")
	cmd.Flags().StringVar(&opts.Separator, "sep", ",", "separador de campos dos arquivos csv")
	cmd.Flags().StringVar(&opts.FiguresDir, "figures-directory", "", "diretório das figuras <codigo_layout>.png")
	cmd.Flags().BoolVar(&opts.CheckDuplicates, "verificar-duplicidade", false, "consulta peças já existentes em outros planos antes de criar")
	_ = cmd.MarkFlagRequired("layouts-file")
	_ = cmd.MarkFlagRequired("parts-file")

	return cmd
}

func runProject(cmd *cobra.Command, opts *ProjectOptions) error {
	sep, err := parseSeparator(opts.Separator)
	if err != nil {
		return WrapExitError(ExitStartup, "invalid --sep", err)
	}
	layouts, err := readRows(opts.LayoutsFile, sep)
	if err != nil {
		return WrapExitError(ExitStartup, "read layouts", err)
	}
	parts, err := readRows(opts.PartsFile, sep)
	if err != nil {
		return WrapExitError(ExitStartup, "read parts", err)
	}

	app, err := startApp(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	defer app.Close()

	var figures ports.FigureSource
	if opts.FiguresDir != "" {
		figures = tabular.FigureDir(opts.FiguresDir)
	}
	planner := app.NewProjectPlanner(figures)
	report, err := planner.Create(cmd.Context(), layouts, parts, opts.CheckDuplicates)
	if err != nil {
		app.Logger.Error("project_create_failed", "error", err)
		return WrapExitError(ExitFailure, "criação do projeto falhou", err)
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d planos criados (%d peças, %d recortes)\n", report.Plans, report.Pieces, report.Recortes)
	return err
}

func readRows(path string, sep rune) ([]usecase.Row, error) {
	table, err := tabular.ReadFile(path, sep)
	if err != nil {
		return nil, err
	}
	rows := make([]usecase.Row, len(table))
	for i, row := range table {
		rows[i] = usecase.Row(row)
	}
	return rows, nil
}

func parseSeparator(v string) (rune, error) {
	if v == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(v) != 1 {
		return 0, fmt.Errorf("separator must be a single character, got %q", v)
	}
	r, _ := utf8.DecodeRuneInString(v)
	return r, nil
}
