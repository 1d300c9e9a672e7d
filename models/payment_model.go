package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentTypeDeposit   = "deposit"
	PaymentTypeRemaining = "remaining"
	PaymentTypeRefund    = "refund"
)

const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Metadata kinds, one per way a payment row comes into existence.
const (
	MetadataCapture          = "capture"
	MetadataExpiry           = "expiry"
	MetadataCapacityReversal = "capacity_reversal"
	MetadataRefund           = "refund"
)

const ReasonCapacityExceeded = "CAPACITY_EXCEEDED"

// PaymentMetadata is the audit context of a ledger row. Kind selects which of
// the typed fields are meaningful; Extra is for free-form notes only.
type PaymentMetadata struct {
	Kind           string            `json:"kind"`
	EventID        string            `json:"event_id,omitempty"`
	Reason         string            `json:"reason,omitempty"`
	CancelReason   string            `json:"cancel_reason,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

func CaptureMetadata(eventID string) PaymentMetadata {
	return PaymentMetadata{Kind: MetadataCapture, EventID: eventID}
}

func ExpiryMetadata(eventID string) PaymentMetadata {
	return PaymentMetadata{Kind: MetadataExpiry, EventID: eventID}
}

func CapacityReversalMetadata(eventID, failure string) PaymentMetadata {
	return PaymentMetadata{
		Kind:           MetadataCapacityReversal,
		EventID:        eventID,
		Reason:         ReasonCapacityExceeded,
		FailureMessage: failure,
	}
}

func RefundMetadata(cancelReason, failure string) PaymentMetadata {
	return PaymentMetadata{Kind: MetadataRefund, CancelReason: cancelReason, FailureMessage: failure}
}

// Payment is an append-only ledger row. Rows are created, never updated.
type Payment struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	BookingID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"booking_id"`
	Provider          string          `gorm:"size:50;not null" json:"provider"`
	Type              string          `gorm:"size:20;not null" json:"type"`
	Amount            int64           `gorm:"not null" json:"amount"`
	Currency          string          `gorm:"size:3" json:"currency"`
	Status            string          `gorm:"size:20;not null" json:"status"`
	ProviderTxnID     *string         `gorm:"size:255;index" json:"provider_txn_id,omitempty"`
	ProviderSessionID *string         `gorm:"size:255" json:"provider_session_id,omitempty"`
	ProviderRefundID  *string         `gorm:"size:255" json:"provider_refund_id,omitempty"`
	RefundOf          *string         `gorm:"size:255" json:"refund_of,omitempty"`
	Metadata          PaymentMetadata `gorm:"type:text;serializer:json" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
