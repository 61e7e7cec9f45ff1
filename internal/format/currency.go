// Package format renders token values for display.
package format

import (
	"fmt"

	"github.com/shopspring/decimal"

	"token-dashboard-sync/internal/domain"
)

// NotAvailable is shown for missing values.
const NotAvailable = "N/A"

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	one      = decimal.NewFromInt(1)
	cent     = decimal.New(1, -2)
)

// Currency renders a USD amount. Amounts of a thousand or more are scaled
// to K, M or B with two decimals; smaller amounts get 2, 4 or 8 decimals
// depending on magnitude.
func Currency(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(billion):
		return "$" + v.Div(billion).StringFixed(2) + "B"
	case v.GreaterThanOrEqual(million):
		return "$" + v.Div(million).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return "$" + v.Div(thousand).StringFixed(2) + "K"
	case v.GreaterThanOrEqual(one):
		return "$" + v.StringFixed(2)
	case v.GreaterThanOrEqual(cent):
		return "$" + v.StringFixed(4)
	default:
		return "$" + v.StringFixed(8)
	}
}

// CurrencyPtr is Currency with nil rendered as NotAvailable.
func CurrencyPtr(v *decimal.Decimal) string {
	if v == nil {
		return NotAvailable
	}
	return Currency(*v)
}

// CurrencyString parses s and renders it. Unparseable input is NotAvailable.
func CurrencyString(s string) string {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return NotAvailable
	}
	return Currency(v)
}

// Token renders a one-line summary of a token.
func Token(t domain.Token) string {
	name := t.Name
	if name == "" {
		name = NotAvailable
	}
	return fmt.Sprintf("%s (%s) price=%s mcap=%s vol24h=%s ca=%s",
		name, t.Symbol, Currency(t.PriceUSD), Currency(t.FDVUSD), Currency(t.VolumeUSD), t.ContractAddress)
}

// TokenPtr renders nil as NotAvailable.
func TokenPtr(t *domain.Token) string {
	if t == nil {
		return NotAvailable
	}
	return Token(*t)
}
