package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO-4217 code accepted for giving.
type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{
	CurrencyKES,
	CurrencyUSD,
	CurrencyEUR,
	CurrencyGBP,
}

func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is a supported Currency.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// MinorUnitExponent is the number of decimal places of the minor unit.
// Every supported currency uses cents.
func (c Currency) MinorUnitExponent() int32 {
	return 2
}

// ParseCurrency converts raw input (case-insensitive) into a Currency.
func ParseCurrency(value string) (Currency, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validCurrencies {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}
