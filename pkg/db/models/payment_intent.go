package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sanctuarypay/tithe-backend/pkg/enums"
)

// PaymentIntent is a single attempted gift tracked from initiation to a terminal outcome.
type PaymentIntent struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Provider          enums.Provider      `gorm:"column:provider;not null"`
	ProviderReference *string             `gorm:"column:provider_reference"`
	AmountMinor       int64               `gorm:"column:amount_minor;not null"`
	Currency          enums.Currency      `gorm:"column:currency;not null"`
	PayerIdentifier   string              `gorm:"column:payer_identifier;not null"`
	Purpose           enums.GivingPurpose `gorm:"column:purpose;not null"`
	FundCode          *string             `gorm:"column:fund_code"`
	MemberID          *uuid.UUID          `gorm:"column:member_id;type:uuid"`
	State             enums.IntentState   `gorm:"column:state;not null"`
	FailureCode       *enums.FailureCode  `gorm:"column:failure_code"`
	FailureReason     *string             `gorm:"column:failure_reason"`
	SettlementReceipt *string             `gorm:"column:settlement_receipt"`
	FlaggedForReview  bool                `gorm:"column:flagged_for_review;not null;default:false"`
	CreatedAt         time.Time           `gorm:"column:created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at"`
}

func (PaymentIntent) TableName() string { return "payment_intents" }
