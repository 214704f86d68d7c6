package mpesa

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// CallbackEnvelope is the body Daraja posts to CallBackURL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values are mixed JSON numbers and strings.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ParseCallback decodes a Daraja STK callback body.
func ParseCallback(raw []byte) (*STKCallback, error) {
	var env CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Body.STKCallback == nil {
		return nil, errors.New("missing stkCallback")
	}
	return env.Body.STKCallback, nil
}

func (c *STKCallback) item(name string) (json.RawMessage, bool) {
	if c == nil || c.CallbackMetadata == nil {
		return nil, false
	}
	for _, it := range c.CallbackMetadata.Item {
		if strings.EqualFold(it.Name, name) && len(it.Value) > 0 {
			return it.Value, true
		}
	}
	return nil, false
}

// Amount is the paid amount in shillings, when present.
func (c *STKCallback) Amount() (decimal.Decimal, bool) {
	raw, ok := c.item("Amount")
	if !ok {
		return decimal.Zero, false
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(raw); err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func (c *STKCallback) ReceiptNumber() string {
	return c.stringItem("MpesaReceiptNumber")
}

func (c *STKCallback) PhoneNumber() string {
	return c.stringItem("PhoneNumber")
}

func (c *STKCallback) TransactionDate() string {
	return c.stringItem("TransactionDate")
}

func (c *STKCallback) stringItem(name string) string {
	raw, ok := c.item(name)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
