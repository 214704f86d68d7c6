package squareprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/sanctuarypay/tithe-backend/internal/providers"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/square"
)

// Square payment statuses.
const (
	statusApproved  = "APPROVED"
	statusPending   = "PENDING"
	statusCompleted = "COMPLETED"
	statusCanceled  = "CANCELED"
	statusFailed    = "FAILED"
)

type paymentCreator interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
}

// Gateway charges card nonces through Square Payments.
type Gateway struct {
	client          paymentCreator
	defaultCurrency enums.Currency
}

func NewGateway(client paymentCreator, defaultCurrency enums.Currency) *Gateway {
	if !defaultCurrency.IsValid() {
		defaultCurrency = enums.CurrencyUSD
	}
	return &Gateway{client: client, defaultCurrency: defaultCurrency}
}

func (g *Gateway) Name() enums.Provider { return enums.ProviderSquare }

func (g *Gateway) DefaultCurrency() enums.Currency { return g.defaultCurrency }

func (g *Gateway) RequiresSource() bool { return true }

func (g *Gateway) NormalizePayer(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (g *Gateway) ValidatePayer(id string) error {
	trimmed := strings.TrimSpace(id)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return fmt.Errorf("%w: expected an email address", providers.ErrInvalidPayer)
	}
	return nil
}

func (g *Gateway) ValidateAmount(amountMinor int64, currency enums.Currency) error {
	if amountMinor <= 0 {
		return fmt.Errorf("%w: amount must be positive", providers.ErrInvalidAmount)
	}
	if !currency.IsValid() {
		return fmt.Errorf("%w: unsupported currency %q", providers.ErrInvalidAmount, currency)
	}
	return nil
}

// Initiate creates an autocompleting payment keyed by the intent id, so a
// retried call returns the original payment instead of charging twice.
// COMPLETED at creation still waits for the webhook.
func (g *Gateway) Initiate(ctx context.Context, intent models.PaymentIntent, opts providers.InitiateOptions) (providers.Handle, error) {
	if strings.TrimSpace(opts.SourceID) == "" {
		return providers.Handle{}, fmt.Errorf("%w: square needs a card source id", providers.ErrMissingSource)
	}
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    intent.AmountMinor,
		Currency:       intent.Currency.String(),
		SourceID:       opts.SourceID,
		IdempotencyKey: intent.ID.String(),
		BuyerEmail:     intent.PayerIdentifier,
		Note:           givingNote(intent),
		ReferenceID:    intent.ID.String(),
	})
	if err != nil {
		if square.IsTransient(err) {
			return providers.Handle{}, providers.MarkTransient(err)
		}
		return providers.Handle{}, err
	}

	handle := providers.Handle{
		ProviderReference: stringValue(payment.GetID()),
		Raw:               payment,
	}
	status := strings.ToUpper(stringValue(payment.GetStatus()))
	switch status {
	case statusCanceled, statusFailed:
		handle.Reason = "square payment " + strings.ToLower(status)
	default:
		handle.Accepted = handle.ProviderReference != ""
		if !handle.Accepted {
			handle.Reason = "square returned no payment id"
		}
	}
	return handle, nil
}

func givingNote(intent models.PaymentIntent) string {
	if intent.FundCode != nil && *intent.FundCode != "" {
		return fmt.Sprintf("%s (%s)", intent.Purpose, *intent.FundCode)
	}
	return intent.Purpose.String()
}

type webhookEvent struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Data    webhookData `json:"data"`
}

type webhookData struct {
	Type   string        `json:"type"`
	ID     string        `json:"id"`
	Object webhookObject `json:"object"`
}

type webhookObject struct {
	Payment *webhookPayment `json:"payment"`
}

type webhookPayment struct {
	ID                string        `json:"id"`
	Status            string        `json:"status"`
	AmountMoney       *webhookMoney `json:"amount_money"`
	ReceiptNumber     string        `json:"receipt_number"`
	BuyerEmailAddress string        `json:"buyer_email_address"`
	ReferenceID       string        `json:"reference_id"`
}

type webhookMoney struct {
	Amount   *int64 `json:"amount"`
	Currency string `json:"currency"`
}

func (g *Gateway) NormalizeCallback(raw []byte) (providers.CallbackEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedPayload, err)
	}
	payment := event.Data.Object.Payment
	if payment == nil {
		return nil, fmt.Errorf("%w: event %q carries no payment", providers.ErrMalformedPayload, event.Type)
	}
	paymentID := strings.TrimSpace(payment.ID)
	if paymentID == "" {
		paymentID = strings.TrimSpace(event.Data.ID)
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing payment id", providers.ErrMalformedPayload)
	}

	cb := &Callback{
		EventID:       event.EventID,
		EventType:     event.Type,
		PaymentID:     paymentID,
		Status:        strings.ToUpper(strings.TrimSpace(payment.Status)),
		ReceiptNumber: payment.ReceiptNumber,
		BuyerEmail:    payment.BuyerEmailAddress,
		ReferenceID:   payment.ReferenceID,
	}
	if payment.AmountMoney != nil && payment.AmountMoney.Amount != nil {
		amount := *payment.AmountMoney.Amount
		cb.Amount = &amount
		cb.Currency = payment.AmountMoney.Currency
	}

	switch cb.Status {
	case statusCompleted:
		if cb.Amount == nil {
			return nil, fmt.Errorf("%w: completed payment without amount_money", providers.ErrMalformedPayload)
		}
	case statusApproved, statusPending, statusCanceled, statusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown payment status %q", providers.ErrMalformedPayload, payment.Status)
	}
	return cb, nil
}

// Callback is the normalized payment.created / payment.updated webhook.
type Callback struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	PaymentID     string `json:"payment_id"`
	Status        string `json:"status"`
	Amount        *int64 `json:"amount,omitempty"`
	Currency      string `json:"currency,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	BuyerEmail    string `json:"buyer_email,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

func (c *Callback) Provider() enums.Provider { return enums.ProviderSquare }
func (c *Callback) Reference() string        { return c.PaymentID }
func (c *Callback) Payer() string            { return strings.ToLower(strings.TrimSpace(c.BuyerEmail)) }

func (c *Callback) Outcome() providers.Outcome {
	switch c.Status {
	case statusCompleted:
		return providers.OutcomeSuccess
	case statusCanceled, statusFailed:
		return providers.OutcomeFailure
	}
	return providers.OutcomePending
}

func (c *Callback) AmountMinor() (int64, bool) {
	if c.Amount == nil {
		return 0, false
	}
	return *c.Amount, true
}

// Receipt falls back to the payment id when Square omits a receipt number.
func (c *Callback) Receipt() string {
	if c.ReceiptNumber != "" {
		return c.ReceiptNumber
	}
	return c.PaymentID
}

func (c *Callback) Reason() string {
	if c.Outcome() == providers.OutcomeFailure {
		return "square payment " + strings.ToLower(c.Status)
	}
	return ""
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
