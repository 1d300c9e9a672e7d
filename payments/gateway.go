package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrUnverifiedEvent is returned when a webhook payload cannot be proven to
// come from the provider.
var ErrUnverifiedEvent = errors.New("invalid or unverified payment event")

type EventType string

const (
	EventSettlement EventType = "settlement"
	EventExpiry     EventType = "expiry"
)

// Event is a verified provider notification reduced to what the booking
// engine needs. PaymentType defaults to deposit when the provider metadata
// carries none.
type Event struct {
	ID            string
	Type          EventType
	BookingID     uuid.UUID
	PaymentType   string
	Amount        int64
	Currency      string
	TransactionID string
	SessionID     string
	// Ignored marks provider events that are valid but irrelevant here.
	Ignored bool
}

type SessionRequest struct {
	BookingID     uuid.UUID
	Reference     string
	PaymentType   string
	Amount        int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	Description   string
}

type Session struct {
	ID  string
	URL string
}

type RefundRequest struct {
	TransactionID string
	Amount        int64
	Metadata      map[string]string
}

type Refund struct {
	ID string
}

// Gateway is the outbound side of the card processor.
type Gateway interface {
	Name() string
	CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// EventVerifier authenticates and decodes an inbound webhook.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}
