package domain

import "time"

// Route is one operation of a production order.
type Route struct {
	IDOrdem                 int64      `json:"id_ordem"`
	SequenciaOperacao       int        `json:"sequencia_operacao"`
	CodigoOperacao          string     `json:"codigo_operacao"`
	IDSetor                 int64      `json:"id_setor"`
	OperacaoFinal           bool       `json:"operacao_final"`
	CodigoRoteiro           *string    `json:"codigo_roteiro"`
	DescricaoRoteiro        *string    `json:"descricao_roteiro"`
	IDMetricaPerformance    *int64     `json:"id_metrica_performance"`
	ValorMetricaPerformance *float64   `json:"valor_metrica_performance"`
	SincronizadoEm          *time.Time `json:"sincronizado_em"`
	QtdFinalizada           *int64     `json:"qtd_finalizada"`
	IDRoteiroERP            *int64     `json:"id_roteiro_erp"`
	QtdFinalizadaERP        *int64     `json:"qtd_finalizada_erp"`
}

// UniquePart ties an id_unico_peca to its order.
type UniquePart struct {
	IDOrdem     int64 `json:"id_ordem"`
	IDUnicoPeca int64 `json:"id_unico_peca"`
}

// OrderCreate is a production order with its routes and unique parts.
type OrderCreate struct {
	IDOrdem              int64      `json:"id_ordem"`
	ItemCodigo           string     `json:"item_codigo"`
	ItemMascara          string     `json:"item_mascara"`
	QuantidadeOrdem      int        `json:"quantidade_ordem"`
	KgPesoLiquido        float64    `json:"kg_peso_liquido"`
	KgPesoBruto          float64    `json:"kg_peso_bruto"`
	DataEmissao          *time.Time `json:"data_emissao"`
	ItemDescricao        *string    `json:"item_descricao"`
	ItemMascaraDescricao *string    `json:"item_mascara_descricao"`
	MMComprimento        *float64   `json:"mm_comprimento"`
	MMLargura            *float64   `json:"mm_largura"`
	MMEspessura          *float64   `json:"mm_espessura"`
	CodigoLote           *string    `json:"codigo_lote"`
	MateriaPrimaDesc     *string    `json:"materia_prima_descricao"`

	Campo01 *string `json:"campo01"`
	Campo02 *string `json:"campo02"`
	Campo03 *string `json:"campo03"`
	Campo04 *string `json:"campo04"`
	Campo05 *string `json:"campo05"`
	Campo06 *string `json:"campo06"`
	Campo07 *string `json:"campo07"`
	Campo08 *string `json:"campo08"`
	Campo09 *string `json:"campo09"`
	Campo10 *string `json:"campo10"`
	Campo11 *string `json:"campo11"`
	Campo12 *string `json:"campo12"`
	Campo13 *string `json:"campo13"`
	Campo14 *string `json:"campo14"`
	Campo15 *string `json:"campo15"`
	Campo16 *string `json:"campo16"`
	Campo17 *string `json:"campo17"`
	Campo18 *string `json:"campo18"`
	Campo19 *string `json:"campo19"`
	Campo20 *string `json:"campo20"`

	Roteiros  []Route      `json:"roteiros"`
	IDsUnicos []UniquePart `json:"ids_unicos"`
}

// FreeFields returns campo01..campo20 in order.
func (o *OrderCreate) FreeFields() []**string {
	return []**string{
		&o.Campo01, &o.Campo02, &o.Campo03, &o.Campo04, &o.Campo05,
		&o.Campo06, &o.Campo07, &o.Campo08, &o.Campo09, &o.Campo10,
		&o.Campo11, &o.Campo12, &o.Campo13, &o.Campo14, &o.Campo15,
		&o.Campo16, &o.Campo17, &o.Campo18, &o.Campo19, &o.Campo20,
	}
}
