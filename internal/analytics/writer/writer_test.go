package writer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sanctuarypay/tithe-backend/internal/analytics/types"
	"github.com/sanctuarypay/tithe-backend/pkg/enums"
	"github.com/sanctuarypay/tithe-backend/pkg/logger"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/payloads"
)

func TestNewWriterValidation(t *testing.T) {
	logg := testLogger()
	if _, err := New(nil, Config{}, logg); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := New(&fakeInserter{table: " "}, Config{}, logg); err == nil {
		t.Fatal("expected error when table missing")
	}
	if _, err := New(&fakeInserter{table: "intent_events"}, Config{}, nil); err == nil {
		t.Fatal("expected error when logger missing")
	}
}

func TestEncodeJSON(t *testing.T) {
	nj, err := EncodeJSON(map[string]any{"foo": "bar"})
	if err != nil || !nj.Valid {
		t.Fatalf("expected valid json, got %+v err=%v", nj, err)
	}
	nj, err = EncodeJSON(nil)
	if err != nil || nj.Valid {
		t.Fatalf("expected nil json to be invalid, got %+v err=%v", nj, err)
	}
	raw := json.RawMessage(`{"foo":"baz"}`)
	nj, err = EncodeJSON(raw)
	if err != nil || nj.JSONVal != string(raw) {
		t.Fatalf("expected raw json passed through, got %s err=%v", nj.JSONVal, err)
	}
}

func TestRowForIntentEvent(t *testing.T) {
	intentID := uuid.New()
	previous := enums.IntentStatePendingProviderAck
	code := enums.FailureCodeAmountMismatch
	env := types.Envelope{
		EventID:       "evt-1",
		EventType:     enums.EventIntentFailed,
		AggregateType: enums.AggregatePaymentIntent,
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:       json.RawMessage(`{"intent_id":"x"}`),
	}
	row, err := RowFor(env, &payloads.IntentEvent{
		IntentID:         intentID,
		Provider:         enums.ProviderMpesa,
		State:            enums.IntentStateFailed,
		PreviousState:    &previous,
		Source:           enums.TransitionSourceCallback,
		AmountMinor:      50000,
		Currency:         enums.CurrencyKES,
		Purpose:          enums.GivingPurposeTithe,
		FailureCode:      &code,
		FlaggedForReview: true,
	})
	if err != nil {
		t.Fatalf("RowFor: %v", err)
	}
	if row.IntentID.StringVal != intentID.String() || row.State.StringVal != "failed" || row.PreviousState.StringVal != "pending_provider_ack" {
		t.Fatalf("unexpected row %+v", row)
	}
	if !row.AmountMinor.Valid || row.AmountMinor.Int64 != 50000 {
		t.Fatalf("unexpected amount %+v", row.AmountMinor)
	}
	if row.FailureCode.StringVal != "amount_mismatch" || !row.FlaggedForReview.Bool {
		t.Fatalf("expected failure details, got %+v", row)
	}
	if row.FundCode.Valid || row.MemberID.Valid {
		t.Fatal("absent optional fields should be null")
	}
	if !row.Payload.Valid {
		t.Fatal("expected raw payload to be kept")
	}
}

func TestRowForMemberEventAndUnknown(t *testing.T) {
	memberID := uuid.New()
	row, err := RowFor(types.Envelope{EventID: "evt-2", EventType: enums.EventMemberRegistered}, &payloads.MemberRegisteredEvent{MemberID: memberID})
	if err != nil {
		t.Fatalf("RowFor: %v", err)
	}
	if row.MemberID.StringVal != memberID.String() || row.IntentID.Valid {
		t.Fatalf("unexpected member row %+v", row)
	}
	if _, err := RowFor(types.Envelope{}, struct{}{}); err == nil {
		t.Fatal("expected error for unmapped payload")
	}
}

func TestWriterUsesEventIDAsInsertID(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	if err := writer.Insert(context.Background(), types.IntentEventRow{EventID: "evt-9"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	saver, ok := fake.lastRows[0].(*cbigquery.StructSaver)
	if !ok {
		t.Fatalf("expected StructSaver, got %T", fake.lastRows[0])
	}
	if saver.InsertID != "evt-9" {
		t.Fatalf("expected insert id evt-9, got %q", saver.InsertID)
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try later"),
		nil,
	}
	if err := writer.Insert(context.Background(), types.IntentEventRow{EventID: "1"}); err != nil {
		t.Fatalf("unexpected error writing row: %v", err)
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected three insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[2].table != "intent_events" {
		t.Fatalf("expected intent_events on retry, got %s", fake.calls[2].table)
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}
	err := writer.Insert(context.Background(), types.IntentEventRow{EventID: "1"})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected googleapi error in chain, got %v", err)
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}
	if err := writer.Insert(context.Background(), types.IntentEventRow{EventID: "1"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(fake.calls) != defaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", defaultMaxAttempts, len(fake.calls))
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":          {nil, false},
		"429":          {&googleapi.Error{Code: http.StatusTooManyRequests}, true},
		"400":          {&googleapi.Error{Code: http.StatusBadRequest}, false},
		"grpc aborted": {status.Error(codes.Aborted, "x"), true},
		"grpc invalid": {status.Error(codes.InvalidArgument, "x"), false},
		"plain":        {errors.New("x"), false},
	}
	for name, tc := range cases {
		if got := isRetryableBigQueryError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, got)
		}
	}
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	table     string
	responses []error
	calls     []insertCall
	lastRows  []cbigquery.ValueSaver
	index     int
}

func (f *fakeInserter) EventsTable() string { return f.table }

func (f *fakeInserter) PutIntentEvents(_ context.Context, rows []cbigquery.ValueSaver) error {
	f.calls = append(f.calls, insertCall{table: f.table, rowCount: len(rows)})
	f.lastRows = rows
	var err error
	if f.index < len(f.responses) {
		err = f.responses[f.index]
	}
	f.index++
	return err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "writer-test", Output: io.Discard})
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{table: "intent_events"}
	writer, err := New(fake, Config{
		RetryPolicy: RetryPolicy{
			InitialBackoff: time.Millisecond,
			MaximumBackoff: 2 * time.Millisecond,
		},
	}, testLogger())
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return writer, fake
}
