package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// IntentTransition is an append-only history row written alongside every state change.
type IntentTransition struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	IntentID  uuid.UUID              `gorm:"column:intent_id;type:uuid;not null"`
	FromState *enums.IntentState     `gorm:"column:from_state"`
	ToState   enums.IntentState      `gorm:"column:to_state;not null"`
	Source    enums.TransitionSource `gorm:"column:source;not null"`
	Reason    *string                `gorm:"column:reason"`
	Payload   datatypes.JSON         `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time              `gorm:"column:created_at"`
}

func (IntentTransition) TableName() string { return "payment_intent_transitions" }
