// Package receipt renders printable receipts for submitted orders.
package receipt

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"pos-service/internal/models"
)

const DefaultHeader = "GONZACARS - REPUESTOS AUTOMOTRICES"

// TextRenderer renders orders as fixed-width plain text
type TextRenderer struct {
	header   string
	footer   string
	location *time.Location
}

// NewTextRenderer creates a renderer. An empty header uses DefaultHeader and
// a nil location uses UTC.
func NewTextRenderer(header, footer string, loc *time.Location) *TextRenderer {
	if header == "" {
		header = DefaultHeader
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TextRenderer{header: header, footer: footer, location: loc}
}

// FileName is the receipt file name for an order id
func FileName(orderID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, orderID)
	return filepath.Base(fmt.Sprintf("order_%s.txt", safe))
}

// Render writes the receipt for order to w
func (r *TextRenderer) Render(w io.Writer, order models.Order) error {
	var buf bytes.Buffer
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(&buf, r.header)
	fmt.Fprintln(&buf, "Sales order")
	fmt.Fprintln(&buf, rule)
	fmt.Fprintf(&buf, "Order:  %s\n", order.ID)
	fmt.Fprintf(&buf, "Date:   %s\n", order.Timestamp.In(r.location).Format("2006-01-02 15:04"))
	fmt.Fprintf(&buf, "Seller: %s\n", order.Seller)
	fmt.Fprintln(&buf, rule)

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tDescription\tQty\tUnit price\tTotal\t")
	for _, l := range order.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t\n",
			l.ProductID, l.Description, l.Quantity, l.UnitPrice.StringFixed(2), l.LineTotal.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to lay out lines: %w", err)
	}

	fmt.Fprintln(&buf, rule)
	fmt.Fprintf(&buf, "TOTAL: %s\n", order.Total.StringFixed(2))
	if r.footer != "" {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, r.footer)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// RenderString renders the receipt into a string
func (r *TextRenderer) RenderString(order models.Order) (string, error) {
	var sb strings.Builder
	if err := r.Render(&sb, order); err != nil {
		return "", err
	}
	return sb.String(), nil
}
