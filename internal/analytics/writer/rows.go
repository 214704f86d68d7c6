package writer

import (
	"fmt"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/sanctuarypay/tithe-backend/internal/analytics/types"
	"github.com/sanctuarypay/tithe-backend/pkg/outbox/payloads"
)

// RowFor flattens a decoded outbox payload into an intent_events row.
func RowFor(envelope types.Envelope, payload any) (types.IntentEventRow, error) {
	raw, err := EncodeJSON(envelope.Payload)
	if err != nil {
		return types.IntentEventRow{}, err
	}
	row := types.IntentEventRow{
		EventID:       envelope.EventID,
		EventType:     envelope.EventType.String(),
		AggregateType: string(envelope.AggregateType),
		OccurredAt:    envelope.OccurredAt.UTC(),
		Payload:       raw,
	}

	switch event := payload.(type) {
	case *payloads.IntentEvent:
		row.IntentID = nullString(event.IntentID.String())
		row.Provider = nullString(event.Provider.String())
		row.State = nullString(event.State.String())
		if event.PreviousState != nil {
			row.PreviousState = nullString(event.PreviousState.String())
		}
		row.Source = nullString(string(event.Source))
		row.AmountMinor = cbigquery.NullInt64{Int64: event.AmountMinor, Valid: true}
		row.Currency = nullString(event.Currency.String())
		row.Purpose = nullString(event.Purpose.String())
		if event.FundCode != nil {
			row.FundCode = nullString(*event.FundCode)
		}
		if event.MemberID != nil {
			row.MemberID = nullString(event.MemberID.String())
		}
		if event.FailureCode != nil {
			row.FailureCode = nullString(string(*event.FailureCode))
		}
		row.FlaggedForReview = cbigquery.NullBool{Bool: event.FlaggedForReview, Valid: true}
	case *payloads.MemberRegisteredEvent:
		row.MemberID = nullString(event.MemberID.String())
	default:
		return types.IntentEventRow{}, fmt.Errorf("no row mapping for %T", payload)
	}
	return row, nil
}

func nullString(value string) cbigquery.NullString {
	if value == "" {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: value, Valid: true}
}
