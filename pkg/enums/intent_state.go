package enums

import "fmt"

// IntentState tracks the lifecycle of a payment intent.
type IntentState string

const (
	IntentStateCreated            IntentState = "created"
	IntentStatePendingProviderAck IntentState = "pending_provider_ack"
	IntentStatePendingSettlement  IntentState = "pending_settlement"
	IntentStateCompleted          IntentState = "completed"
	IntentStateFailed             IntentState = "failed"
	IntentStateExpired            IntentState = "expired"
)

var validIntentStates = []IntentState{
	IntentStateCreated,
	IntentStatePendingProviderAck,
	IntentStatePendingSettlement,
	IntentStateCompleted,
	IntentStateFailed,
	IntentStateExpired,
}

// intentTransitions is the only set of forward edges an intent may follow.
var intentTransitions = map[IntentState][]IntentState{
	IntentStateCreated: {
		IntentStatePendingProviderAck,
		IntentStateFailed,
	},
	IntentStatePendingProviderAck: {
		IntentStatePendingSettlement,
		IntentStateCompleted,
		IntentStateFailed,
		IntentStateExpired,
	},
	IntentStatePendingSettlement: {
		IntentStateCompleted,
		IntentStateFailed,
	},
}

func (s IntentState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known IntentState.
func (s IntentState) IsValid() bool {
	for _, candidate := range validIntentStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s IntentState) IsTerminal() bool {
	switch s {
	case IntentStateCompleted, IntentStateFailed, IntentStateExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle graph.
func (s IntentState) CanTransitionTo(next IntentState) bool {
	for _, candidate := range intentTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseIntentState converts raw input into an IntentState.
func ParseIntentState(value string) (IntentState, error) {
	for _, candidate := range validIntentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent state %q", value)
}
