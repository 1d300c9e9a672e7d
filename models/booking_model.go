package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Deposit and remaining balances share this status domain but move
// independently of each other.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusPaid      = "PAID"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Values stored in Booking.LastEmailType.
const (
	EmailTypeConfirmation     = "booking_confirmation"
	EmailTypeRemaining        = "remaining_reminder"
	EmailTypeCancellation     = "trip_cancellation"
	EmailTypeCapacityExceeded = "capacity_exceeded"
)

type Booking struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Reference  string    `gorm:"size:12;not null;uniqueIndex" json:"reference"`
	TripDateID uuid.UUID `gorm:"type:uuid;not null;index" json:"trip_date_id"`

	CustomerName  string `gorm:"size:255;not null" json:"customer_name"`
	CustomerEmail string `gorm:"size:255;not null" json:"customer_email"`
	CustomerPhone string `gorm:"size:50" json:"customer_phone"`

	ParticipantsCount int     `gorm:"not null" json:"participants_count"`
	TotalPrice        int64   `gorm:"not null" json:"total_price"`
	DepositAmount     int64   `gorm:"not null" json:"deposit_amount"`
	RemainingAmount   int64   `gorm:"not null" json:"remaining_amount"`
	DiscountAmount    int64   `gorm:"not null" json:"discount_amount"`
	Currency          string  `gorm:"size:3;not null" json:"currency"`
	CouponCode        *string `gorm:"size:50" json:"coupon_code,omitempty"`

	DepositStatus      string     `gorm:"size:20;not null;index" json:"deposit_status"`
	RemainingStatus    string     `gorm:"size:20;not null" json:"remaining_status"`
	RemainingDueDate   *time.Time `json:"remaining_due_date,omitempty"`
	DepositSessionID   *string    `gorm:"size:255" json:"-"`
	RemainingSessionID *string    `gorm:"size:255" json:"-"`
	PaymentURL         *string    `gorm:"type:text" json:"payment_url,omitempty"`

	CancelledAt  *time.Time `gorm:"index" json:"cancelled_at,omitempty"`
	CancelReason *string    `gorm:"type:text" json:"cancel_reason,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`
	RefundAmount int64      `gorm:"not null" json:"refund_amount"`

	LastEmailSentAt            *time.Time `json:"last_email_sent_at,omitempty"`
	LastEmailType              *string    `gorm:"size:40" json:"last_email_type,omitempty"`
	LastEmailMessageID         *string    `gorm:"size:255" json:"-"`
	RemainingEmailSentAt       *time.Time `json:"remaining_email_sent_at,omitempty"`
	RemainingEmailMessageID    *string    `gorm:"size:255" json:"-"`
	CancellationEmailSentAt    *time.Time `json:"cancellation_email_sent_at,omitempty"`
	CancellationEmailMessageID *string    `gorm:"size:255" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.DepositStatus == "" {
		b.DepositStatus = PaymentStatusPending
	}
	if b.RemainingStatus == "" {
		b.RemainingStatus = PaymentStatusPending
	}
	return nil
}

func (b *Booking) IsCancelled() bool {
	return b.CancelledAt != nil
}

// HoldsSeats reports whether the booking's participants are counted in the
// trip date's reserved spots.
func (b *Booking) HoldsSeats() bool {
	return b.CancelledAt == nil && b.DepositStatus == PaymentStatusPaid
}

func (b *Booking) LastEmailWas(kind string) bool {
	return b.LastEmailType != nil && *b.LastEmailType == kind
}
