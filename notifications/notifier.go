package notifications

import (
	"context"

	"github.com/anjiri1684/tour_booking/models"
)

type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindRemainingReminder   Kind = "remaining_reminder"
	KindTripCancellation    Kind = "trip_cancellation"
	KindAdminMinReached     Kind = "admin_min_reached"
	KindAdminSoldOut        Kind = "admin_sold_out"
	KindCapacityExceeded    Kind = "capacity_exceeded"
)

// Message carries what a template may need. Booking is nil for admin alerts.
type Message struct {
	ToEmail  string
	ToName   string
	Booking  *models.Booking
	TripDate *models.TripDate

	PaymentURL   string
	Reason       string
	RefundAmount int64
	Confirmed    int
}

// Result is returned instead of an error: a failed send is an outcome to be
// recorded, never something that should undo the caller's work.
type Result struct {
	Success   bool
	MessageID string
	Err       error
}

func Failed(err error) Result {
	return Result{Err: err}
}

type Notifier interface {
	Send(ctx context.Context, kind Kind, msg Message) Result
}

// Noop is used when no email provider is configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, kind Kind, msg Message) Result {
	return Result{Success: false, Err: ErrNotConfigured}
}
