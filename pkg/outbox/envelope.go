package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// ActorRef identifies what produced the event.
type ActorRef struct {
	MemberID *uuid.UUID             `json:"memberId,omitempty"`
	Source   enums.TransitionSource `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
