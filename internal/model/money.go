package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents lists currencies whose minor unit is not 2 digits.
// Backend amounts are in major units; display rounding follows ISO 4217.
var currencyExponents = map[string]int32{
	"jpy": 0,
	"krw": 0,
	"twd": 0,
	"vnd": 0,
	"bhd": 3,
	"kwd": 3,
}

// CurrencyExponent returns the number of minor-unit digits for a currency.
func CurrencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToLower(currency)]; ok {
		return exp
	}
	return 2
}

// FormatAmount renders a major-unit amount with its upper-cased currency code.
// Examples: (12.5, "usd") → "12.50 USD", (1200, "twd") → "1200 TWD"
func FormatAmount(amount decimal.Decimal, currency string) string {
	s := amount.StringFixedBank(CurrencyExponent(currency))
	if currency == "" {
		return s
	}
	return s + " " + strings.ToUpper(currency)
}

// ParseAmount converts a decimal string in major units to a Decimal.
// Empty or malformed input yields zero, matching how the backend omits totals.
func ParseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
