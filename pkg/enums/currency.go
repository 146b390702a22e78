package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO-4217 code as stored on product variants. Codes are kept
// upper-case in the database and lower-cased only at the processor boundary.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
)

// all of these settle in cents, which the checkout minor-unit conversion assumes
var supportedCurrencies = map[Currency]struct{}{
	CurrencyUSD: {},
	CurrencyEUR: {},
	CurrencyGBP: {},
	CurrencyCAD: {},
}

func (c Currency) String() string { return string(c) }

// IsValid reports whether the store can charge in c.
func (c Currency) IsValid() bool {
	_, ok := supportedCurrencies[c]
	return ok
}

// Processor returns the lower-case code payment processors expect.
func (c Currency) Processor() string {
	return strings.ToLower(string(c))
}

// ParseCurrency accepts either case and surrounding whitespace.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
