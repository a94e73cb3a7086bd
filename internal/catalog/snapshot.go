// Package catalog loads and queries the product snapshot held by a session.
package catalog

import (
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"
)

// LowStockThreshold is the exclusive upper bound of the "low" stock filter
const LowStockThreshold = 10

// StockFilter narrows a snapshot by stock level
type StockFilter string

const (
	StockAll StockFilter = "all"
	StockLow StockFilter = "low"
	StockOut StockFilter = "out"
)

// ParseStockFilter maps a query value to a StockFilter. Empty means all.
func ParseStockFilter(s string) (StockFilter, error) {
	switch StockFilter(strings.ToLower(strings.TrimSpace(s))) {
	case "", StockAll:
		return StockAll, nil
	case StockLow:
		return StockLow, nil
	case StockOut:
		return StockOut, nil
	default:
		return "", fmt.Errorf("unknown stock filter %q", s)
	}
}

func (f StockFilter) match(p models.Product) bool {
	switch f {
	case StockLow:
		return p.CurrentStock > 0 && p.CurrentStock < LowStockThreshold
	case StockOut:
		return p.CurrentStock <= 0
	default:
		return true
	}
}

// Snapshot is the last catalog fetched from the ledger. It is replaced as a
// whole on reload and never edited in place.
type Snapshot struct {
	Products []models.Product `json:"products"`
	Source   string           `json:"source"`
	LoadedAt time.Time        `json:"loaded_at"`
}

// NewSnapshot wraps products loaded from source
func NewSnapshot(products []models.Product, source string) *Snapshot {
	return &Snapshot{
		Products: products,
		Source:   source,
		LoadedAt: time.Now().UTC(),
	}
}

// Find returns the first product with the given id
func (s *Snapshot) Find(id string) (models.Product, bool) {
	if s == nil {
		return models.Product{}, false
	}
	for _, p := range s.Products {
		if p.ID == id {
			return p, true
		}
	}
	return models.Product{}, false
}

// Filter returns the products whose id or description contains query
// (case-insensitive) and whose stock matches filter
func (s *Snapshot) Filter(query string, filter StockFilter) []models.Product {
	if s == nil {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))

	out := make([]models.Product, 0, len(s.Products))
	for _, p := range s.Products {
		if q != "" &&
			!strings.Contains(strings.ToLower(p.ID), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		if !filter.match(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Sellable returns the products that can still be added to a cart
func (s *Snapshot) Sellable() []models.Product {
	if s == nil {
		return nil
	}
	out := make([]models.Product, 0, len(s.Products))
	for _, p := range s.Products {
		if p.CurrentStock > 0 {
			out = append(out, p)
		}
	}
	return out
}

// WithProducts returns a new snapshot of the same source holding products
func (s *Snapshot) WithProducts(products []models.Product) *Snapshot {
	return &Snapshot{
		Products: products,
		Source:   s.Source,
		LoadedAt: s.LoadedAt,
	}
}

// IsFallback reports whether the snapshot holds the built-in example data
func (s *Snapshot) IsFallback() bool {
	return s != nil && s.Source == models.SourceFallback
}
