package submission

import (
	"encoding/json"
	"net/url"
	"time"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// Payload is the canonical body sent to the ledger
type Payload struct {
	OrderID   string        `json:"orderId"`
	Seller    string        `json:"seller"`
	Timestamp string        `json:"timestamp"`
	Lines     []PayloadLine `json:"lines"`
	Total     json.Number   `json:"total"`
}

// PayloadLine is one order line as sent to the ledger
type PayloadLine struct {
	ProductID   string      `json:"productId"`
	Description string      `json:"description"`
	Quantity    int         `json:"quantity"`
	UnitPrice   json.Number `json:"unitPrice"`
	LineTotal   json.Number `json:"lineTotal"`
}

// NewPayload renders order for the wire. Amounts are emitted as exact JSON
// numbers.
func NewPayload(order models.Order) Payload {
	lines := make([]PayloadLine, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = PayloadLine{
			ProductID:   l.ProductID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   amount(l.UnitPrice),
			LineTotal:   amount(l.LineTotal),
		}
	}

	return Payload{
		OrderID:   order.ID,
		Seller:    order.Seller,
		Timestamp: order.Timestamp.UTC().Format(time.RFC3339),
		Lines:     lines,
		Total:     amount(order.Total),
	}
}

// Form renders the payload as form fields. Lines travel as a JSON array.
func (p Payload) Form() (url.Values, error) {
	lines, err := json.Marshal(p.Lines)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("orderId", p.OrderID)
	form.Set("seller", p.Seller)
	form.Set("timestamp", p.Timestamp)
	form.Set("lines", string(lines))
	form.Set("total", p.Total.String())
	return form, nil
}

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}
