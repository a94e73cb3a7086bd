package ledger

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Sheet cells are free text, so the readers below never fail: missing or
// unparseable cells read as "" or 0.

var (
	leadingInt     = regexp.MustCompile(`^[+-]?[0-9]+`)
	leadingDecimal = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)`)
)

// Text returns the trimmed cell at i, or "" when the row is shorter
func Text(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Int reads the leading integer of the cell at i
func Int(row []string, i int) int {
	m := leadingInt.FindString(Text(row, i))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// Decimal reads the leading decimal number of the cell at i
func Decimal(row []string, i int) decimal.Decimal {
	s := Text(row, i)
	if d, err := decimal.NewFromString(s); err == nil {
		return d
	}
	m := leadingDecimal.FindString(s)
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(m, "."))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NonNegativeInt is Int clamped at zero
func NonNegativeInt(row []string, i int) int {
	if n := Int(row, i); n > 0 {
		return n
	}
	return 0
}

// NonNegativeDecimal is Decimal clamped at zero
func NonNegativeDecimal(row []string, i int) decimal.Decimal {
	if d := Decimal(row, i); d.IsPositive() {
		return d
	}
	return decimal.Zero
}
