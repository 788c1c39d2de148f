package models

import "strings"

// Currency is an ISO 4217 code for one of the currencies the service trades.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	TRY Currency = "TRY"
)

// Currencies lists every supported currency.
var Currencies = []Currency{USD, EUR, TRY}

// ParseCurrency normalizes and validates a currency code from request input.
func ParseCurrency(code string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	for _, known := range Currencies {
		if c == known {
			return c, true
		}
	}
	return "", false
}
