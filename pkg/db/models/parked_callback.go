package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// ParkedCallback is an authenticated provider callback whose reference had
// no intent yet. The sweep replays it until the intent appears or it ages out.
type ParkedCallback struct {
	ID                uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Provider          enums.Provider `gorm:"column:provider;not null"`
	ProviderReference string         `gorm:"column:provider_reference;not null"`
	BodySHA256        string         `gorm:"column:body_sha256;not null"`
	Body              []byte         `gorm:"column:body;type:bytea;not null"`
	Attempts          int            `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt     *time.Time     `gorm:"column:last_attempt_at"`
	CreatedAt         time.Time      `gorm:"column:created_at"`
}

func (ParkedCallback) TableName() string { return "parked_callbacks" }
