package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

var (
	// ErrMalformedPayload marks a verified callback that cannot be normalized.
	ErrMalformedPayload = errors.New("malformed callback payload")
	ErrInvalidPayer     = errors.New("invalid payer identifier")
	ErrInvalidAmount    = errors.New("invalid amount for provider")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrMissingSource    = errors.New("payment source required")
)

// Outcome is what a callback says happened to the payment.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePending Outcome = "pending"
	OutcomeFailure Outcome = "failure"
)

// InitiateOptions carries client-supplied inputs that are not stored on the
// intent, such as a card nonce.
type InitiateOptions struct {
	SourceID string
}

// Handle is the provider's synchronous answer to Initiate.
type Handle struct {
	ProviderReference string
	Accepted          bool
	// Reason explains a rejection when Accepted is false.
	Reason string
	Raw    any
}

// CallbackEvent is the normalized form of a provider webhook. Each provider
// has its own concrete type.
type CallbackEvent interface {
	Provider() enums.Provider
	Reference() string
	Outcome() Outcome
	// AmountMinor is false when the callback carries no amount.
	AmountMinor() (int64, bool)
	Receipt() string
	Reason() string
	Payer() string
}

// Gateway is the capability set each provider implements.
type Gateway interface {
	Name() enums.Provider
	Initiate(ctx context.Context, intent models.PaymentIntent, opts InitiateOptions) (Handle, error)
	NormalizeCallback(raw []byte) (CallbackEvent, error)
	ValidatePayer(id string) error
	// NormalizePayer returns the canonical form stored on the intent.
	NormalizePayer(id string) string
	ValidateAmount(amountMinor int64, currency enums.Currency) error
	DefaultCurrency() enums.Currency
}

// SourceRequirer is implemented by gateways that charge a client-supplied
// payment source.
type SourceRequirer interface {
	RequiresSource() bool
}

// RequiresSource reports whether gw needs InitiateOptions.SourceID.
func RequiresSource(gw Gateway) bool {
	req, ok := gw.(SourceRequirer)
	return ok && req.RequiresSource()
}

// Registry resolves gateways by provider name.
type Registry struct {
	gateways map[enums.Provider]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[enums.Provider]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		r.gateways[gw.Name()] = gw
	}
	return r
}

func (r *Registry) Get(provider enums.Provider) (Gateway, error) {
	if r != nil {
		if gw, ok := r.gateways[provider]; ok {
			return gw, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

// Providers lists the enabled providers in name order.
func (r *Registry) Providers() []enums.Provider {
	if r == nil {
		return nil
	}
	out := make([]enums.Provider, 0, len(r.gateways))
	for name := range r.gateways {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
