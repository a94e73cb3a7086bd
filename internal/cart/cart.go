package cart

import (
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProduct    = errors.New("unknown product")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
)

// StockPolicy decides which stock ceiling AddLine checks against
type StockPolicy int

const (
	// PolicyPerCall compares each added quantity against catalog stock only
	PolicyPerCall StockPolicy = iota
	// PolicyCartAggregate also counts the quantity already in the cart
	PolicyCartAggregate
)

// ParsePolicy maps the configuration value to a StockPolicy
func ParsePolicy(s string) (StockPolicy, error) {
	switch s {
	case "", "per_call":
		return PolicyPerCall, nil
	case "cart_aggregate":
		return PolicyCartAggregate, nil
	default:
		return PolicyPerCall, fmt.Errorf("unknown stock check mode %q", s)
	}
}

// ProductLookup resolves a product identifier against a catalog snapshot
type ProductLookup interface {
	Find(id string) (models.Product, bool)
}

// Cart accumulates order lines for the current session. It is not safe for
// concurrent use.
type Cart struct {
	lines  []models.CartLine
	policy StockPolicy
}

// New creates an empty cart
func New(policy StockPolicy) *Cart {
	return &Cart{policy: policy}
}

// AddLine adds quantity units of productID. A product already in the cart has
// its quantity increased instead of getting a second line. On error the cart
// is left unchanged.
func (c *Cart) AddLine(productID string, quantity int, lookup ProductLookup) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	product, ok := lookup.Find(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	idx := c.indexOf(productID)

	requested := quantity
	if c.policy == PolicyCartAggregate && idx >= 0 {
		requested += c.lines[idx].Quantity
	}
	if requested > product.CurrentStock {
		return fmt.Errorf("%w: product %s requested=%d available=%d",
			ErrInsufficientStock, productID, requested, product.CurrentStock)
	}

	if idx >= 0 {
		line := &c.lines[idx]
		line.Quantity += quantity
		line.LineTotal = lineTotal(line.UnitPrice, line.Quantity)
		return nil
	}

	c.lines = append(c.lines, models.CartLine{
		ProductID:   product.ID,
		Description: product.Description,
		UnitPrice:   product.Price,
		Quantity:    quantity,
		LineTotal:   lineTotal(product.Price, quantity),
	})
	return nil
}

// RemoveLine drops the line at index; out of range indexes are ignored
func (c *Cart) RemoveLine(index int) {
	if index < 0 || index >= len(c.lines) {
		return
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
}

// Total returns the sum of all line totals
func (c *Cart) Total() decimal.Decimal {
	return Sum(c.lines)
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.lines = nil
}

// RemoveSold takes the sold quantities out of the cart. Lines whose quantity
// drops to zero are removed; anything added after the sold lines were frozen
// stays.
func (c *Cart) RemoveSold(sold []models.CartLine) {
	for _, line := range sold {
		idx := c.indexOf(line.ProductID)
		if idx < 0 {
			continue
		}
		remaining := c.lines[idx].Quantity - line.Quantity
		if remaining <= 0 {
			c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
			continue
		}
		c.lines[idx].Quantity = remaining
		c.lines[idx].LineTotal = lineTotal(c.lines[idx].UnitPrice, remaining)
	}
}

// Len returns the number of lines
func (c *Cart) Len() int {
	return len(c.lines)
}

// Lines returns a copy of the lines in display order
func (c *Cart) Lines() []models.CartLine {
	out := make([]models.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Quantity returns the quantity of productID currently in the cart
func (c *Cart) Quantity(productID string) int {
	if idx := c.indexOf(productID); idx >= 0 {
		return c.lines[idx].Quantity
	}
	return 0
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Sum adds up the line totals of lines
func Sum(lines []models.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

func lineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
