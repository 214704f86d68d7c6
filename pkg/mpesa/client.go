// Package mpesa is a small client for the Safaricom Daraja STK push API.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sanctuarypay/tithe-backend/pkg/config"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const (
	tokenPath          = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath        = "/mpesa/stkpush/v1/processrequest"
	transactionType    = "CustomerPayBillOnline"
	timestampLayout    = "20060102150405"
	tokenExpirySkew    = time.Minute
	maxResponseBytes   = 1 << 20
	defaultHTTPTimeout = 30 * time.Second

	// MaxAccountReferenceLen is the Daraja limit on AccountReference.
	MaxAccountReferenceLen = 12
)

// Daraja timestamps are in East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

var (
	errConsumerKeyRequired = errors.New("mpesa consumer key and secret are required")
	errShortCodeRequired   = errors.New("mpesa shortcode and passkey are required")
	errCallbackRequired    = errors.New("mpesa callback url is required")
)

type Client struct {
	httpClient      *http.Client
	baseURL         string
	consumerKey     string
	consumerSecret  string
	shortCode       string
	passKey         string
	callbackURL     string
	transactionDesc string
	logg            *logger.Logger
	now             func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient validates the Daraja credentials. A nil httpClient gets a 30s timeout client.
func NewClient(cfg config.MpesaConfig, httpClient *http.Client, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ConsumerKey) == "" || strings.TrimSpace(cfg.ConsumerSecret) == "" {
		return nil, errConsumerKeyRequired
	}
	if strings.TrimSpace(cfg.ShortCode) == "" || strings.TrimSpace(cfg.PassKey) == "" {
		return nil, errShortCodeRequired
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errCallbackRequired
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		httpClient:      httpClient,
		baseURL:         strings.TrimRight(cfg.BaseURL(), "/"),
		consumerKey:     cfg.ConsumerKey,
		consumerSecret:  cfg.ConsumerSecret,
		shortCode:       cfg.ShortCode,
		passKey:         cfg.PassKey,
		callbackURL:     cfg.CallbackURL,
		transactionDesc: cfg.TransactionDesc,
		logg:            logg,
		now:             time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// AccessToken returns a cached OAuth token, fetching a new one when the
// cached token is within a minute of expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.consumerKey, c.consumerSecret)

	var out tokenResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("mpesa oauth: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("mpesa oauth: empty access token")
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(out.ExpiresIn))
	if err != nil || seconds <= 0 {
		seconds = 3599
	}
	c.token = out.AccessToken
	c.tokenExpiry = now.Add(time.Duration(seconds)*time.Second - tokenExpirySkew)
	return c.token, nil
}

// STKPushRequest is one Lipa Na M-Pesa Online prompt.
type STKPushRequest struct {
	Amount           int64
	PhoneNumber      string
	AccountReference string
	TransactionDesc  string
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is Daraja's synchronous acknowledgement.
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// Accepted reports whether Daraja queued the prompt.
func (r STKPushResponse) Accepted() bool {
	return strings.TrimSpace(r.ResponseCode) == "0"
}

// STKPush sends the payment prompt to the payer's handset.
func (c *Client) STKPush(ctx context.Context, in STKPushRequest) (*STKPushResponse, error) {
	if in.Amount <= 0 {
		return nil, errors.New("mpesa amount must be positive")
	}
	if len(in.AccountReference) > MaxAccountReferenceLen {
		return nil, fmt.Errorf("mpesa account reference longer than %d characters", MaxAccountReferenceLen)
	}
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format(timestampLayout)
	desc := in.TransactionDesc
	if desc == "" {
		desc = c.transactionDesc
	}
	body := stkPushBody{
		BusinessShortCode: c.shortCode,
		Password:          Password(c.shortCode, c.passKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            in.Amount,
		PartyA:            in.PhoneNumber,
		PartyB:            c.shortCode,
		PhoneNumber:       in.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  in.AccountReference,
		TransactionDesc:   desc,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stkPushPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var out STKPushResponse
	if err := c.do(req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		return nil, err
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"checkout_request_id": out.CheckoutRequestID,
			"response_code":       out.ResponseCode,
			"account_reference":   in.AccountReference,
		}), "mpesa stk push sent")
	}
	return &out, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return newAPIError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode daraja response: %w", err)
	}
	return nil
}

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
