package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tempox/tx-mes-cli/internal/core/domain"
	"github.com/tempox/tx-mes-cli/internal/core/ports"
)

type OrderReport struct {
	Orders    int
	Routes    int
	UniqueIDs int
}

// OrderImporter sends production orders read from the orders, routes and
// unique parts tables.
type OrderImporter struct {
	client ports.MESClient
	logger *slog.Logger
}

func NewOrderImporter(client ports.MESClient, logger *slog.Logger) *OrderImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderImporter{client: client, logger: logger}
}

func (o *OrderImporter) Import(ctx context.Context, orders, routes, parts []Row) (OrderReport, error) {
	built, err := BuildOrders(orders, routes, parts)
	if err != nil {
		return OrderReport{}, err
	}

	report := OrderReport{Orders: len(built)}
	for _, order := range built {
		report.Routes += len(order.Roteiros)
		report.UniqueIDs += len(order.IDsUnicos)
	}
	if err := o.client.CreateOrders(ctx, built); err != nil {
		return report, fmt.Errorf("create orders: %w", err)
	}
	o.logger.Info("orders_created", "orders", report.Orders, "routes", report.Routes, "unique_ids", report.UniqueIDs)
	return report, nil
}

// BuildOrders attaches every route and unique part to its order. A row that
// names an order missing from the orders table is invalid input.
func BuildOrders(orders, routes, parts []Row) ([]domain.OrderCreate, error) {
	out := make([]domain.OrderCreate, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, row := range orders {
		order, err := parseOrder(row)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("parse order row %d", i+1), err)
		}
		order.Roteiros = []domain.Route{}
		order.IDsUnicos = []domain.UniquePart{}
		index[order.IDOrdem] = len(out)
		out = append(out, order)
	}

	for i, row := range routes {
		route, err := parseRoute(row)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("parse route row %d", i+1), err)
		}
		pos, ok := index[route.IDOrdem]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("route row %d", i+1), fmt.Errorf("order %d not found in orders table", route.IDOrdem))
		}
		out[pos].Roteiros = append(out[pos].Roteiros, route)
	}

	for i, row := range parts {
		var part domain.UniquePart
		var err error
		if part.IDOrdem, err = int64Field(row, "id_ordem"); err == nil {
			part.IDUnicoPeca, err = int64Field(row, "id_unico_peca")
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("parse unique id row %d", i+1), err)
		}
		pos, ok := index[part.IDOrdem]
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidInput, fmt.Sprintf("unique id row %d", i+1), fmt.Errorf("order %d not found in orders table", part.IDOrdem))
		}
		out[pos].IDsUnicos = append(out[pos].IDsUnicos, part)
	}
	return out, nil
}

func parseOrder(row Row) (domain.OrderCreate, error) {
	var order domain.OrderCreate
	var err error

	if order.IDOrdem, err = int64Field(row, "id_ordem"); err != nil {
		return order, err
	}
	if order.ItemCodigo, err = requiredField(row, "item_codigo"); err != nil {
		return order, err
	}
	if order.ItemMascara, err = requiredField(row, "item_mascara"); err != nil {
		return order, err
	}
	if order.QuantidadeOrdem, err = intField(row, "quantidade_ordem"); err != nil {
		return order, err
	}
	if order.KgPesoLiquido, err = floatFieldOr(row, "kg_peso_liquido", 0); err != nil {
		return order, err
	}
	if order.KgPesoBruto, err = floatFieldOr(row, "kg_peso_bruto", 0); err != nil {
		return order, err
	}
	if order.DataEmissao, err = optionalTimeField(row, "data_emissao"); err != nil {
		return order, err
	}

	floats := []struct {
		name string
		dst  **float64
	}{
		{"mm_comprimento", &order.MMComprimento},
		{"mm_largura", &order.MMLargura},
		{"mm_espessura", &order.MMEspessura},
	}
	for _, f := range floats {
		if *f.dst, err = optionalFloatField(row, f.name); err != nil {
			return order, err
		}
	}

	order.ItemDescricao = optionalString(row, "item_descricao")
	order.ItemMascaraDescricao = optionalString(row, "item_mascara_descricao")
	order.CodigoLote = optionalString(row, "codigo_lote")
	order.MateriaPrimaDesc = optionalString(row, "materia_prima_descricao")
	for i, dst := range order.FreeFields() {
		*dst = optionalString(row, fmt.Sprintf("campo%02d", i+1))
	}
	return order, nil
}

func parseRoute(row Row) (domain.Route, error) {
	var route domain.Route
	var err error

	if route.IDOrdem, err = int64Field(row, "id_ordem"); err != nil {
		return route, err
	}
	if route.SequenciaOperacao, err = intField(row, "sequencia_operacao"); err != nil {
		return route, err
	}
	if route.CodigoOperacao, err = requiredField(row, "codigo_operacao"); err != nil {
		return route, err
	}
	if route.IDSetor, err = int64Field(row, "id_setor"); err != nil {
		return route, err
	}
	if route.OperacaoFinal, err = boolField(row, "operacao_final"); err != nil {
		return route, err
	}
	if route.ValorMetricaPerformance, err = optionalFloatField(row, "valor_metrica_performance"); err != nil {
		return route, err
	}
	if route.SincronizadoEm, err = optionalTimeField(row, "sincronizado_em"); err != nil {
		return route, err
	}

	ints := []struct {
		name string
		dst  **int64
	}{
		{"id_metrica_performance", &route.IDMetricaPerformance},
		{"qtd_finalizada", &route.QtdFinalizada},
		{"id_roteiro_erp", &route.IDRoteiroERP},
		{"qtd_finalizada_erp", &route.QtdFinalizadaERP},
	}
	for _, f := range ints {
		if *f.dst, err = optionalIntField(row, f.name); err != nil {
			return route, err
		}
	}

	route.CodigoRoteiro = optionalString(row, "codigo_roteiro")
	route.DescricaoRoteiro = optionalString(row, "descricao_roteiro")
	return route, nil
}

func int64Field(row Row, name string) (int64, error) {
	v, err := requiredField(row, name)
	if err != nil {
		return 0, err
	}
	n, err := parseInteger(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func floatFieldOr(row Row, name string, def float64) (float64, error) {
	if isBlank(row[name]) {
		return def, nil
	}
	return floatField(row, name)
}

func optionalFloatField(row Row, name string) (*float64, error) {
	if isBlank(row[name]) {
		return nil, nil
	}
	f, err := floatField(row, name)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optionalString(row Row, name string) *string {
	v := strings.TrimSpace(row[name])
	if isBlank(v) {
		return nil
	}
	return &v
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func optionalTimeField(row Row, name string) (*time.Time, error) {
	v := strings.TrimSpace(row[name])
	if isBlank(v) {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: invalid date %q", name, v)
}
