package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// IntentEventRow mirrors the intent_events BigQuery table. Member events
// share the table with the intent columns left null.
type IntentEventRow struct {
	EventID          string               `bigquery:"event_id"`
	EventType        string               `bigquery:"event_type"`
	AggregateType    string               `bigquery:"aggregate_type"`
	OccurredAt       time.Time            `bigquery:"occurred_at"`
	IntentID         cbigquery.NullString `bigquery:"intent_id"`
	Provider         cbigquery.NullString `bigquery:"provider"`
	State            cbigquery.NullString `bigquery:"state"`
	PreviousState    cbigquery.NullString `bigquery:"previous_state"`
	Source           cbigquery.NullString `bigquery:"source"`
	AmountMinor      cbigquery.NullInt64  `bigquery:"amount_minor"`
	Currency         cbigquery.NullString `bigquery:"currency"`
	Purpose          cbigquery.NullString `bigquery:"purpose"`
	FundCode         cbigquery.NullString `bigquery:"fund_code"`
	MemberID         cbigquery.NullString `bigquery:"member_id"`
	FailureCode      cbigquery.NullString `bigquery:"failure_code"`
	FlaggedForReview cbigquery.NullBool   `bigquery:"flagged_for_review"`
	Payload          cbigquery.NullJSON   `bigquery:"payload"`
}
