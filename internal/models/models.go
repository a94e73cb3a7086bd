package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog row with its stock counters
type Product struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	InitialStock int             `json:"initial_stock"`
	CurrentStock int             `json:"current_stock"`
	EndingStock  int             `json:"ending_stock"`
	Cost         decimal.Decimal `json:"cost"`
	Price        decimal.Decimal `json:"price"`
}

// CartLine is one product entry of the cart. Description and UnitPrice are
// copied from the catalog when the line is created.
type CartLine struct {
	ProductID   string          `json:"product_id"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// Order represents a finalized cart submitted to the ledger
type Order struct {
	ID        string          `db:"id" json:"id"`
	Seller    string          `db:"seller" json:"seller"`
	Timestamp time.Time       `db:"created_at" json:"timestamp"`
	Lines     []CartLine      `db:"-" json:"lines"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Strategy  string          `db:"strategy" json:"strategy,omitempty"`
}

// OrderLine is the journaled form of a CartLine
type OrderLine struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     string          `db:"order_id" json:"order_id"`
	Position    int             `db:"position" json:"position"`
	ProductID   string          `db:"product_id" json:"product_id"`
	Description string          `db:"description" json:"description"`
	Quantity    int             `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	LineTotal   decimal.Decimal `db:"line_total" json:"line_total"`
}

// OrderHistoryRow is one row of the remote orders sheet
type OrderHistoryRow struct {
	OrderID     string          `json:"order_id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	Seller      string          `json:"seller"`
}

// Snapshot sources
const (
	SourceRemote   = "remote"
	SourceFallback = "fallback"
)
