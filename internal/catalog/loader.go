package catalog

import (
	"context"
	"fmt"
	"strconv"

	"pos-service/internal/ledger"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// Positional columns of a catalog row
const (
	colID = iota
	colDescription
	colInitial
	colCurrent
	colEnding
	colCost
	colPrice
)

// Positional columns of an orders sheet row
const (
	colOrderID = iota
	colOrderDate
	colOrderDescription
	colOrderQuantity
	colOrderPrice
	colOrderTotal
	colOrderSeller
)

// RowSource reads and writes ledger sheets
type RowSource interface {
	FetchRows(ctx context.Context, sheet string) ([][]string, error)
	ReplaceRows(ctx context.Context, sheet string, rows [][]string) error
}

// Loader fetches the catalog and order history from the ledger
type Loader struct {
	source       RowSource
	catalogSheet string
	historySheet string
	logger       *zap.Logger
}

// NewLoader creates a loader reading the given sheets
func NewLoader(source RowSource, catalogSheet, historySheet string) *Loader {
	return &Loader{
		source:       source,
		catalogSheet: catalogSheet,
		historySheet: historySheet,
		logger:       util.GetLogger(),
	}
}

// Load fetches and parses the catalog. Errors wrap
// ledger.ErrBackendUnavailable or ledger.ErrMalformedResponse.
func (l *Loader) Load(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogLoader.Load")
	defer span.End()

	rows, err := l.source.FetchRows(ctx, l.catalogSheet)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	products := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		if blank(row) {
			continue
		}
		products = append(products, ParseProduct(row))
	}
	return products, nil
}

// LoadOrFallback returns the remote catalog, or the example catalog marked as
// fallback when the ledger cannot be read. It never retries.
func (l *Loader) LoadOrFallback(ctx context.Context) *Snapshot {
	products, err := l.Load(ctx)
	if err != nil {
		l.logger.Warn("Catalog unavailable, using example data", zap.Error(err))
		util.CatalogLoadsTotal.WithLabelValues(models.SourceFallback).Inc()
		return NewSnapshot(ExampleProducts(), models.SourceFallback)
	}

	l.logger.Info("Catalog loaded", zap.Int("products", len(products)))
	util.CatalogLoadsTotal.WithLabelValues(models.SourceRemote).Inc()
	return NewSnapshot(products, models.SourceRemote)
}

// LoadHistory fetches and parses the orders sheet
func (l *Loader) LoadHistory(ctx context.Context) ([]models.OrderHistoryRow, error) {
	ctx, span := util.StartSpan(ctx, "CatalogLoader.LoadHistory")
	defer span.End()

	rows, err := l.source.FetchRows(ctx, l.historySheet)
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to fetch order history: %w", err)
	}

	history := make([]models.OrderHistoryRow, 0, len(rows))
	for _, row := range rows {
		if blank(row) {
			continue
		}
		history = append(history, ParseHistoryRow(row))
	}
	return history, nil
}

// HistoryOrFallback returns the remote order history with its source, or the
// example history when the ledger cannot be read.
func (l *Loader) HistoryOrFallback(ctx context.Context) ([]models.OrderHistoryRow, string) {
	history, err := l.LoadHistory(ctx)
	if err != nil {
		l.logger.Warn("Order history unavailable, using example data", zap.Error(err))
		return ExampleHistory(), models.SourceFallback
	}
	return history, models.SourceRemote
}

// PushStock writes products back to the catalog sheet
func (l *Loader) PushStock(ctx context.Context, products []models.Product) error {
	ctx, span := util.StartSpan(ctx, "CatalogLoader.PushStock")
	defer span.End()

	rows := make([][]string, len(products))
	for i, p := range products {
		rows[i] = ProductRow(p)
	}

	if err := l.source.ReplaceRows(ctx, l.catalogSheet, rows); err != nil {
		util.FailSpan(span, err)
		return fmt.Errorf("failed to push stock: %w", err)
	}
	return nil
}

// ParseProduct reads a positional catalog row. Missing or unparseable numbers
// read as zero and negative values are clamped to zero.
func ParseProduct(row []string) models.Product {
	return models.Product{
		ID:           ledger.Text(row, colID),
		Description:  ledger.Text(row, colDescription),
		InitialStock: ledger.NonNegativeInt(row, colInitial),
		CurrentStock: ledger.NonNegativeInt(row, colCurrent),
		EndingStock:  ledger.NonNegativeInt(row, colEnding),
		Cost:         ledger.NonNegativeDecimal(row, colCost),
		Price:        ledger.NonNegativeDecimal(row, colPrice),
	}
}

// ProductRow renders p in catalog column order
func ProductRow(p models.Product) []string {
	return []string{
		p.ID,
		p.Description,
		strconv.Itoa(p.InitialStock),
		strconv.Itoa(p.CurrentStock),
		strconv.Itoa(p.EndingStock),
		p.Cost.StringFixed(2),
		p.Price.StringFixed(2),
	}
}

// ParseHistoryRow reads a positional orders sheet row
func ParseHistoryRow(row []string) models.OrderHistoryRow {
	return models.OrderHistoryRow{
		OrderID:     ledger.Text(row, colOrderID),
		Date:        ledger.Text(row, colOrderDate),
		Description: ledger.Text(row, colOrderDescription),
		Quantity:    ledger.NonNegativeInt(row, colOrderQuantity),
		Price:       ledger.NonNegativeDecimal(row, colOrderPrice),
		Total:       ledger.NonNegativeDecimal(row, colOrderTotal),
		Seller:      ledger.Text(row, colOrderSeller),
	}
}

func blank(row []string) bool {
	for i := range row {
		if ledger.Text(row, i) != "" {
			return false
		}
	}
	return true
}
