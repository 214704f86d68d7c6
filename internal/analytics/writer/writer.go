package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sanctuarypay/tithe-backend/internal/analytics/types"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

type Config struct {
	RetryPolicy RetryPolicy
}

// RetryPolicy bounds BigQuery streaming insert retries.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type eventSink interface {
	PutIntentEvents(ctx context.Context, rows []cbigquery.ValueSaver) error
	EventsTable() string
}

// BigQueryWriter turns decoded outbox events into intent_events rows. Each
// row carries its event id as the insert id, so a redelivered message that
// slips past the Redis marker is still deduplicated by BigQuery.
type BigQueryWriter struct {
	client eventSink
	table  string
	retry  RetryPolicy
	logg   *logger.Logger
}

func New(client eventSink, cfg Config, logg *logger.Logger) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	table := strings.TrimSpace(client.EventsTable())
	if table == "" {
		return nil, errors.New("intent events table is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	retryPolicy := cfg.RetryPolicy
	if retryPolicy.MaxAttempts <= 0 {
		retryPolicy.MaxAttempts = defaultMaxAttempts
	}
	if retryPolicy.InitialBackoff <= 0 {
		retryPolicy.InitialBackoff = defaultInitialBackoff
	}
	if retryPolicy.MaximumBackoff < retryPolicy.InitialBackoff {
		retryPolicy.MaximumBackoff = max(defaultMaximumBackoff, retryPolicy.InitialBackoff)
	}

	return &BigQueryWriter{client: client, table: table, retry: retryPolicy, logg: logg}, nil
}

// Handle implements the worker's handler contract.
func (w *BigQueryWriter) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	row, err := RowFor(envelope, payload)
	if err != nil {
		return err
	}
	return w.Insert(ctx, row)
}

func (w *BigQueryWriter) Insert(ctx context.Context, rows ...types.IntentEventRow) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]cbigquery.ValueSaver, len(rows))
	for i := range rows {
		savers[i] = &cbigquery.StructSaver{Struct: &rows[i], InsertID: rows[i].EventID}
	}
	return w.insertWithRetry(ctx, savers)
}

func (w *BigQueryWriter) insertWithRetry(ctx context.Context, rows []cbigquery.ValueSaver) error {
	backoff := retry.NewExponential(w.retry.InitialBackoff)
	backoff = retry.WithCappedDuration(w.retry.MaximumBackoff, backoff)
	backoff = retry.WithMaxRetries(uint64(w.retry.MaxAttempts-1), backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := w.client.PutIntentEvents(ctx, rows)
		if err == nil {
			return nil
		}
		if isRetryableBigQueryError(err) {
			w.logg.Warn(w.logg.WithFields(ctx, map[string]any{
				"table":   w.table,
				"attempt": attempt,
				"error":   err.Error(),
			}), "bigquery insert failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %s rows: %w", w.table, err)
	}
	return nil
}

func isRetryableBigQueryError(err error) bool {
	if err == nil {
		return false
	}

	var multi *cbigquery.MultiError
	if errors.As(err, &multi) {
		if multi == nil || len(*multi) == 0 {
			return false
		}
		for _, inner := range *multi {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var pme *cbigquery.PutMultiError
	if errors.As(err, &pme) {
		if pme == nil || len(*pme) == 0 {
			return false
		}
		for _, rowErr := range *pme {
			if !isRetryableBigQueryError(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var rowErr *cbigquery.RowInsertionError
	if errors.As(err, &rowErr) {
		if rowErr == nil || len(rowErr.Errors) == 0 {
			return false
		}
		for _, inner := range rowErr.Errors {
			if !isRetryableBigQueryError(inner) {
				return false
			}
		}
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return isRetryableHTTPCode(apiErr.Code)
	}

	var statusErr interface{ GRPCStatus() *status.Status }
	if errors.As(err, &statusErr) {
		if st := statusErr.GRPCStatus(); st != nil {
			return isRetryableGRPCCode(st.Code())
		}
	}

	return false
}

func isRetryableHTTPCode(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable:
		return true
	default:
		return false
	}
}

// EncodeJSON serializes the provided payload so it can be stored in BigQuery JSON columns.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case cbigquery.NullJSON:
		return value, nil
	case json.RawMessage:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	case []byte:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	if len(marshaled) == 0 {
		return cbigquery.NullJSON{}, nil
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}
