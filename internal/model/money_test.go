package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"two decimals", "12.5", "usd", "12.50 USD"},
		{"zero decimal currency", "1200", "twd", "1200 TWD"},
		{"three decimal currency", "1.2", "kwd", "1.200 KWD"},
		{"no currency", "3", "", "3.00"},
		{"zero", "0", "eur", "0.00 EUR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAmount(decimal.RequireFromString(tt.amount), tt.currency)
			if got != tt.want {
				t.Errorf("FormatAmount(%s, %q) = %q, want %q", tt.amount, tt.currency, got, tt.want)
			}
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"99.00", "99"},
		{"1234.56", "1234.56"},
		{"", "0"},
		{"abc", "0"},
		{"-10", "-10"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseAmount(tt.input)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestCurrencyExponent(t *testing.T) {
	if got := CurrencyExponent("JPY"); got != 0 {
		t.Errorf("CurrencyExponent(JPY) = %d, want 0", got)
	}
	if got := CurrencyExponent("usd"); got != 2 {
		t.Errorf("CurrencyExponent(usd) = %d, want 2", got)
	}
}
