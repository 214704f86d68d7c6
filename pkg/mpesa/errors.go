package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Daraja returns this when an STK prompt is already pending for the payer.
const codeTransactionInProgress = "500.001.1001"

// APIError is a non-2xx Daraja response.
type APIError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("daraja http %d", e.StatusCode)
	}
	return fmt.Sprintf("daraja http %d: %s %s", e.StatusCode, e.Code, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	_ = json.Unmarshal(body, apiErr)
	apiErr.StatusCode = status
	return apiErr
}

// IsTransactionInProgress reports Daraja refusing a prompt because one is
// already pending. The earlier prompt owns the payment so this is never retried.
func IsTransactionInProgress(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Code) == codeTransactionInProgress
}

// IsTransient reports failures worth retrying: network errors, timeouts, 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsTransactionInProgress(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
