package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregatePaymentIntent OutboxAggregateType = "payment_intent"
	AggregateMember        OutboxAggregateType = "member"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentIntent,
	AggregateMember,
}

func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventIntentOpened            OutboxEventType = "intent_opened"
	EventIntentAwaitingAck       OutboxEventType = "intent_awaiting_ack"
	EventIntentPendingSettlement OutboxEventType = "intent_pending_settlement"
	EventIntentCompleted         OutboxEventType = "intent_completed"
	EventIntentFailed            OutboxEventType = "intent_failed"
	EventIntentExpired           OutboxEventType = "intent_expired"
	EventMemberRegistered        OutboxEventType = "member_registered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventIntentOpened,
	EventIntentAwaitingAck,
	EventIntentPendingSettlement,
	EventIntentCompleted,
	EventIntentFailed,
	EventIntentExpired,
	EventMemberRegistered,
}

func (e OutboxEventType) String() string {
	return string(e)
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// EventForIntentState maps the state an intent moved into onto the event emitted for it.
func EventForIntentState(state IntentState) (OutboxEventType, bool) {
	switch state {
	case IntentStateCreated:
		return EventIntentOpened, true
	case IntentStatePendingProviderAck:
		return EventIntentAwaitingAck, true
	case IntentStatePendingSettlement:
		return EventIntentPendingSettlement, true
	case IntentStateCompleted:
		return EventIntentCompleted, true
	case IntentStateFailed:
		return EventIntentFailed, true
	case IntentStateExpired:
		return EventIntentExpired, true
	}
	return "", false
}

// OutboxDLQErrorReason records why the publisher parked an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
