package models

import (
	"time"

	"github.com/google/uuid"
)

// Member is the local profile for an identity-provider subject.
type Member struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ExternalSubject string    `gorm:"column:external_subject;not null;uniqueIndex"`
	DisplayName     *string   `gorm:"column:display_name"`
	Email           *string   `gorm:"column:email"`
	Phone           *string   `gorm:"column:phone"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (Member) TableName() string { return "members" }
