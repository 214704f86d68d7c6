package enums

// FailureCode classifies why an intent ended in the failed state.
type FailureCode string

const (
	FailureCodeProviderInitiation FailureCode = "provider_initiation"
	FailureCodeProviderDeclined   FailureCode = "provider_declined"
	FailureCodeAmountMismatch     FailureCode = "amount_mismatch"
	FailureCodeDuplicateReference FailureCode = "duplicate_reference"
)

func (c FailureCode) String() string {
	return string(c)
}
