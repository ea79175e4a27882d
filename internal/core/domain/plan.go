package domain

import "strings"

// PlanSnapshot is the remote state of a cutting plan that references a part.
type PlanSnapshot struct {
	CodigoLayout string  `json:"codigo_layout"`
	CodigoLote   *string `json:"codigo_lote"`
	NomeProjeto  string  `json:"nome_projeto"`
	Pendente     bool    `json:"pendente"`
	Finalizado   bool    `json:"finalizado"`
	Inativo      bool    `json:"inativo"`
	EmProcesso   bool    `json:"em_processo"`
}

// PartRef is an incoming part checked against existing plans.
type PartRef struct {
	CodigoLayout string
	IDOrdem      *int64
	IDUnicoPeca  int64
}

type DuplicateHit struct {
	Part PartRef
	Plan PlanSnapshot
}

type Reading struct {
	ResourceID int64  `json:"id_recurso"`
	Code       string `json:"codigo"`
	Qty        int    `json:"qtd"`
	Manual     bool   `json:"leitura_manual"`
}

type PointType string

const (
	PointStartOrEnd  PointType = "INICIO_OU_FIM"
	PointStartAndEnd PointType = "INICIO_E_FIM"
)

func ParsePointType(v string) (PointType, bool) {
	switch PointType(strings.ToUpper(strings.TrimSpace(v))) {
	case PointStartOrEnd:
		return PointStartOrEnd, true
	case PointStartAndEnd:
		return PointStartAndEnd, true
	}
	return "", false
}

type Action string

const (
	ActionReading   Action = "leitura"
	ActionPointPlan Action = "plano"
)

type MaterialType string

const (
	MaterialChapa   MaterialType = "chapa"
	MaterialSobra   MaterialType = "sobra"
	MaterialRecorte MaterialType = "recorte"
)

func ParseMaterialType(v string) (MaterialType, bool) {
	switch MaterialType(strings.ToLower(strings.TrimSpace(v))) {
	case MaterialChapa:
		return MaterialChapa, true
	case MaterialSobra:
		return MaterialSobra, true
	case MaterialRecorte:
		return MaterialRecorte, true
	}
	return "", false
}

type PieceCreate struct {
	QtdCortadaNoLayout int     `json:"qtd_cortada_no_layout"`
	IDUnicoPeca        *int64  `json:"id_unico_peca"`
	IDOrdem            *int64  `json:"id_ordem"`
	TempoCorteSegundos float64 `json:"tempo_corte_segundos"`
	IDRetrabalho       *int64  `json:"id_retrabalho"`
}

type PlanCreate struct {
	CodigoLayout           string        `json:"codigo_layout"`
	CodigoLote             string        `json:"codigo_lote"`
	DescricaoMaterial      string        `json:"descricao_material"`
	IDRecurso              int64         `json:"id_recurso"`
	MMCompLinear           float64       `json:"mm_comp_linear"`
	MMComprimento          float64       `json:"mm_comprimento"`
	MMLargura              float64       `json:"mm_largura"`
	NomeProjeto            string        `json:"nome_projeto"`
	PercAproveitamento     float64       `json:"perc_aproveitamento"`
	PercSobras             float64       `json:"perc_sobras"`
	QtdChapas              int           `json:"qtd_chapas"`
	QtdSeparacaoManual     int           `json:"qtd_separacao_manual"`
	QtdSeparacaoAutomatica int           `json:"qtd_separacao_automatica"`
	TempoEstimadoSeg       float64       `json:"tempo_estimado_seg"`
	Tipo                   MaterialType  `json:"tipo"`
	QtdRecortes            int           `json:"qtd_recortes"`
	Figure                 *string       `json:"figure"`
	Pecas                  []PieceCreate `json:"pecas"`
}
