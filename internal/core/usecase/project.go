package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

// Row is one header-mapped line of a layouts or parts table.
type Row map[string]string

type ProjectReport struct {
	Plans      int
	Pieces     int
	Recortes   int
	Duplicates []domain.DuplicateHit
}

// ProjectPlanner turns layout and part tables into one MES project.
type ProjectPlanner struct {
	client     ports.MESClient
	duplicates ports.DuplicateFinder
	figures    ports.FigureSource
	logger     *slog.Logger
}

func NewProjectPlanner(client ports.MESClient, duplicates ports.DuplicateFinder, figures ports.FigureSource, logger *slog.Logger) *ProjectPlanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectPlanner{client: client, duplicates: duplicates, figures: figures, logger: logger}
}

// Create builds the plans, optionally refuses parts that are already planned,
// and sends the project.
func (p *ProjectPlanner) Create(ctx context.Context, layouts, parts []Row, checkDuplicates bool) (ProjectReport, error) {
	plans, refs, err := p.Build(layouts, parts)
	if err != nil {
		return ProjectReport{}, err
	}

	report := ProjectReport{Plans: len(plans)}
	for _, plan := range plans {
		report.Pieces += len(plan.Pecas)
		report.Recortes += plan.QtdRecortes
	}

	if checkDuplicates && p.duplicates != nil {
		hits, err := p.duplicates.Check(ctx, refs)
		if err != nil {
			return report, fmt.Errorf("check duplicates: %w", err)
		}
		if len(hits) > 0 {
			report.Duplicates = hits
			for _, hit := range hits {
				p.logger.Error("duplicate_part",
					"id_unico_peca", hit.Part.IDUnicoPeca,
					"codigo_layout", hit.Part.CodigoLayout,
					"existing_layout", hit.Plan.CodigoLayout,
					"existing_project", hit.Plan.NomeProjeto,
				)
			}
			return report, fmt.Errorf("create project: %d parts: %w", len(hits), domain.ErrDuplicatePart)
		}
	}

	if err := p.client.CreateProject(ctx, plans); err != nil {
		return report, fmt.Errorf("create project: %w", err)
	}
	p.logger.Info("project_created", "plans", report.Plans, "pieces", report.Pieces, "recortes", report.Recortes)
	return report, nil
}

// Build groups the parts under their layouts. Recorte parts are only counted.
func (p *ProjectPlanner) Build(layouts, parts []Row) ([]domain.PlanCreate, []domain.PartRef, error) {
	byLayout := make(map[string][]parsedPiece)
	for i, row := range parts {
		parsed, err := parsePiece(row)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("parse part row %d", i+1), err)
		}
		byLayout[parsed.layout] = append(byLayout[parsed.layout], parsed)
	}

	plans := make([]domain.PlanCreate, 0, len(layouts))
	var refs []domain.PartRef
	for i, row := range layouts {
		plan, err := parsePlan(row)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("parse layout row %d", i+1), err)
		}

		plan.Pecas = []domain.PieceCreate{}
		for _, part := range byLayout[plan.CodigoLayout] {
			if part.recorte {
				plan.QtdRecortes++
				continue
			}
			plan.Pecas = append(plan.Pecas, part.piece)
			if part.piece.IDUnicoPeca != nil {
				refs = append(refs, domain.PartRef{
					CodigoLayout: plan.CodigoLayout,
					IDOrdem:      part.piece.IDOrdem,
					IDUnicoPeca:  *part.piece.IDUnicoPeca,
				})
			}
		}

		if p.figures != nil {
			figure, err := p.figures.Figure(plan.CodigoLayout)
			if err != nil {
				return nil, nil, fmt.Errorf("load figure of %s: %w", plan.CodigoLayout, err)
			}
			if figure == nil {
				p.logger.Warn("figure_not_found", "codigo_layout", plan.CodigoLayout)
			}
			plan.Figure = figure
		}
		plans = append(plans, plan)
	}
	return plans, refs, nil
}

type parsedPiece struct {
	layout  string
	recorte bool
	piece   domain.PieceCreate
}

func parsePiece(row Row) (parsedPiece, error) {
	var out parsedPiece
	var err error

	if out.layout, err = requiredField(row, "codigo_layout"); err != nil {
		return out, err
	}
	if out.piece.QtdCortadaNoLayout, err = intField(row, "qtd_cortada_no_layout"); err != nil {
		return out, err
	}
	if out.piece.TempoCorteSegundos, err = floatField(row, "tempo_corte_segundos"); err != nil {
		return out, err
	}
	if out.piece.IDOrdem, err = optionalIntField(row, "id_ordem"); err != nil {
		return out, err
	}
	if out.piece.IDUnicoPeca, err = optionalIntField(row, "id_unico_peca"); err != nil {
		return out, err
	}
	if out.piece.IDRetrabalho, err = optionalIntField(row, "id_retrabalho"); err != nil {
		return out, err
	}
	if out.recorte, err = boolField(row, "recorte"); err != nil {
		return out, err
	}
	if out.recorte && (out.piece.IDOrdem != nil || out.piece.IDUnicoPeca != nil) {
		return out, fmt.Errorf("recorte part of %s must not carry id_ordem or id_unico_peca", out.layout)
	}
	return out, nil
}

func parsePlan(row Row) (domain.PlanCreate, error) {
	var plan domain.PlanCreate
	var err error

	strs := []struct {
		name string
		dst  *string
	}{
		{"codigo_layout", &plan.CodigoLayout},
		{"codigo_lote", &plan.CodigoLote},
		{"descricao_material", &plan.DescricaoMaterial},
		{"nome_projeto", &plan.NomeProjeto},
	}
	for _, f := range strs {
		if *f.dst, err = requiredField(row, f.name); err != nil {
			return plan, err
		}
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"mm_comp_linear", &plan.MMCompLinear},
		{"mm_comprimento", &plan.MMComprimento},
		{"mm_largura", &plan.MMLargura},
		{"perc_aproveitamento", &plan.PercAproveitamento},
		{"perc_sobras", &plan.PercSobras},
		{"tempo_estimado_seg", &plan.TempoEstimadoSeg},
	}
	for _, f := range floats {
		if *f.dst, err = floatField(row, f.name); err != nil {
			return plan, err
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"qtd_chapas", &plan.QtdChapas},
		{"qtd_separacao_manual", &plan.QtdSeparacaoManual},
		{"qtd_separacao_automatica", &plan.QtdSeparacaoAutomatica},
	}
	for _, f := range ints {
		if *f.dst, err = intField(row, f.name); err != nil {
			return plan, err
		}
	}

	recurso, err := intField(row, "id_recurso")
	if err != nil {
		return plan, err
	}
	plan.IDRecurso = int64(recurso)

	tipo, ok := domain.ParseMaterialType(row["tipo"])
	if !ok {
		return plan, fmt.Errorf("tipo: unknown material type %q", row["tipo"])
	}
	plan.Tipo = tipo
	return plan, nil
}

func isBlank(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "null", "none":
		return true
	}
	return false
}

func requiredField(row Row, name string) (string, error) {
	v := strings.TrimSpace(row[name])
	if isBlank(v) {
		return "", fmt.Errorf("%s: required", name)
	}
	return v, nil
}

func parseNumber(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, ".") {
		v = strings.ReplaceAll(v, ",", ".")
	}
	return strconv.ParseFloat(v, 64)
}

func floatField(row Row, name string) (float64, error) {
	v, err := requiredField(row, name)
	if err != nil {
		return 0, err
	}
	f, err := parseNumber(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

func intField(row Row, name string) (int, error) {
	v, err := requiredField(row, name)
	if err != nil {
		return 0, err
	}
	n, err := parseInteger(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return int(n), nil
}

func optionalIntField(row Row, name string) (*int64, error) {
	v := row[name]
	if isBlank(v) {
		return nil, nil
	}
	n, err := parseInteger(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &n, nil
}

// parseInteger accepts integral floats such as "12.0" as written by
// spreadsheet exports.
func parseInteger(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}
	f, err := parseNumber(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", v)
	}
	return int64(f), nil
}

func boolField(row Row, name string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(row[name])) {
	case "true", "t", "1", "sim", "s", "yes", "y", "verdadeiro":
		return true, nil
	case "false", "f", "0", "nao", "não", "n", "no", "falso", "":
		return false, nil
	}
	return false, fmt.Errorf("%s: invalid boolean %q", name, row[name])
}
