package enums

import (
	"fmt"
	"strings"
)

// Provider identifies the external payment rail an intent is charged through.
type Provider string

const (
	ProviderMpesa  Provider = "mpesa"
	ProviderSquare Provider = "square"
)

var validProviders = []Provider{
	ProviderMpesa,
	ProviderSquare,
}

func (p Provider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Provider.
func (p Provider) IsValid() bool {
	for _, candidate := range validProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProvider converts raw input (case-insensitive) into a Provider.
func ParseProvider(value string) (Provider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider %q", value)
}
