package mpesaprovider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sanctuarypay/tithe-backend/internal/providers"
	"github.com/sanctuarypay/tithe-backend/pkg/db/models"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/mpesa"
)

const shillingMinorUnits = 100

var msisdnPattern = regexp.MustCompile(`^254(7|1)\d{8}$`)

type stkClient interface {
	STKPush(ctx context.Context, in mpesa.STKPushRequest) (*mpesa.STKPushResponse, error)
}

// Gateway drives M-Pesa STK push giving.
type Gateway struct {
	client          stkClient
	transactionDesc string
}

func NewGateway(client stkClient, transactionDesc string) *Gateway {
	return &Gateway{client: client, transactionDesc: strings.TrimSpace(transactionDesc)}
}

func (g *Gateway) Name() enums.Provider { return enums.ProviderMpesa }

func (g *Gateway) DefaultCurrency() enums.Currency { return enums.CurrencyKES }

// NormalizePayer rewrites local (07.., 01..) and +254 forms to 2547../2541...
func (g *Gateway) NormalizePayer(id string) string {
	return NormalizeMSISDN(id)
}

func (g *Gateway) ValidatePayer(id string) error {
	if !msisdnPattern.MatchString(NormalizeMSISDN(id)) {
		return fmt.Errorf("%w: expected a Safaricom number like 254712345678", providers.ErrInvalidPayer)
	}
	return nil
}

// ValidateAmount enforces KES in whole shillings, since STK push has no cents.
func (g *Gateway) ValidateAmount(amountMinor int64, currency enums.Currency) error {
	if currency != enums.CurrencyKES {
		return fmt.Errorf("%w: mpesa only charges %s", providers.ErrInvalidAmount, enums.CurrencyKES)
	}
	if amountMinor <= 0 || amountMinor%shillingMinorUnits != 0 {
		return fmt.Errorf("%w: mpesa amounts must be whole shillings", providers.ErrInvalidAmount)
	}
	return nil
}

func (g *Gateway) Initiate(ctx context.Context, intent models.PaymentIntent, _ providers.InitiateOptions) (providers.Handle, error) {
	if err := g.ValidateAmount(intent.AmountMinor, intent.Currency); err != nil {
		return providers.Handle{}, err
	}
	resp, err := g.client.STKPush(ctx, mpesa.STKPushRequest{
		Amount:           intent.AmountMinor / shillingMinorUnits,
		PhoneNumber:      NormalizeMSISDN(intent.PayerIdentifier),
		AccountReference: AccountReference(intent.ID),
		TransactionDesc:  g.transactionDesc,
	})
	if err != nil {
		if mpesa.IsTransient(err) {
			return providers.Handle{}, providers.MarkTransient(err)
		}
		return providers.Handle{}, err
	}
	handle := providers.Handle{
		ProviderReference: resp.CheckoutRequestID,
		Accepted:          resp.Accepted() && resp.CheckoutRequestID != "",
		Raw:               resp,
	}
	if !handle.Accepted {
		handle.Reason = strings.TrimSpace(resp.ResponseDescription)
		if handle.Reason == "" {
			handle.Reason = "mpesa rejected the payment prompt"
		}
	}
	return handle, nil
}

func (g *Gateway) NormalizeCallback(raw []byte) (providers.CallbackEvent, error) {
	cb, err := mpesa.ParseCallback(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(cb.CheckoutRequestID) == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", providers.ErrMalformedPayload)
	}
	event := &Callback{
		MerchantRequestID:  cb.MerchantRequestID,
		CheckoutRequestID:  strings.TrimSpace(cb.CheckoutRequestID),
		ResultCode:         cb.ResultCode,
		ResultDesc:         cb.ResultDesc,
		MpesaReceiptNumber: cb.ReceiptNumber(),
		PhoneNumber:        cb.PhoneNumber(),
		TransactionDate:    cb.TransactionDate(),
	}
	if amount, ok := cb.Amount(); ok {
		event.Amount = &amount
	}
	if event.ResultCode == 0 {
		if event.Amount == nil {
			return nil, fmt.Errorf("%w: success callback without Amount", providers.ErrMalformedPayload)
		}
		if event.MpesaReceiptNumber == "" {
			return nil, fmt.Errorf("%w: success callback without MpesaReceiptNumber", providers.ErrMalformedPayload)
		}
	}
	return event, nil
}

// Callback is the normalized Daraja STK result.
type Callback struct {
	MerchantRequestID  string           `json:"merchant_request_id"`
	CheckoutRequestID  string           `json:"checkout_request_id"`
	ResultCode         int              `json:"result_code"`
	ResultDesc         string           `json:"result_desc"`
	Amount             *decimal.Decimal `json:"amount,omitempty"`
	MpesaReceiptNumber string           `json:"mpesa_receipt_number,omitempty"`
	PhoneNumber        string           `json:"phone_number,omitempty"`
	TransactionDate    string           `json:"transaction_date,omitempty"`
}

func (c *Callback) Provider() enums.Provider { return enums.ProviderMpesa }
func (c *Callback) Reference() string        { return c.CheckoutRequestID }
func (c *Callback) Receipt() string          { return c.MpesaReceiptNumber }
func (c *Callback) Reason() string           { return c.ResultDesc }

func (c *Callback) Outcome() providers.Outcome {
	if c.ResultCode == 0 {
		return providers.OutcomeSuccess
	}
	return providers.OutcomeFailure
}

// AmountMinor converts the shilling amount to cents. Fractional cents are
// reported as not representable.
func (c *Callback) AmountMinor() (int64, bool) {
	if c.Amount == nil {
		return 0, false
	}
	minor := c.Amount.Mul(decimal.NewFromInt(shillingMinorUnits))
	if !minor.IsInteger() {
		return 0, false
	}
	return minor.IntPart(), true
}

func (c *Callback) Payer() string {
	if c.PhoneNumber == "" {
		return ""
	}
	return NormalizeMSISDN(c.PhoneNumber)
}

// NormalizeMSISDN strips spaces, dashes and a leading '+' and expands the
// local 0-prefix to 254.
func NormalizeMSISDN(raw string) string {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if strings.HasPrefix(cleaned, "0") && len(cleaned) == 10 {
		cleaned = "254" + cleaned[1:]
	}
	return cleaned
}

// AccountReference fits the intent id into Daraja's 12 character field.
func AccountReference(id uuid.UUID) string {
	compact := strings.ReplaceAll(id.String(), "-", "")
	return strings.ToUpper(compact[:mpesa.MaxAccountReferenceLen])
}
