package enums

import (
	"fmt"
	"strings"
)

// GivingPurpose tags what a payment is given towards.
type GivingPurpose string

const (
	GivingPurposeTithe    GivingPurpose = "tithe"
	GivingPurposeOffering GivingPurpose = "offering"
	GivingPurposeFund     GivingPurpose = "fund"
)

var validGivingPurposes = []GivingPurpose{
	GivingPurposeTithe,
	GivingPurposeOffering,
	GivingPurposeFund,
}

func (p GivingPurpose) String() string {
	return string(p)
}

// IsValid reports whether the value is a known GivingPurpose.
func (p GivingPurpose) IsValid() bool {
	for _, candidate := range validGivingPurposes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseGivingPurpose converts raw input (case-insensitive) into a GivingPurpose.
func ParseGivingPurpose(value string) (GivingPurpose, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validGivingPurposes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid giving purpose %q", value)
}
