package notifications

import (
	"fmt"
	"html"
	"strings"
)

func FormatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, strings.ToUpper(currency))
}

// Render builds the subject and HTML body for a notice.
func Render(kind Kind, msg Message) (string, string, error) {
	b := msg.Booking
	date := ""
	if msg.TripDate != nil {
		date = msg.TripDate.Date.Format("2006-01-02")
	}
	name := html.EscapeString(msg.ToName)

	switch kind {
	case KindBookingConfirmation:
		if b == nil {
			return "", "", errMissingBooking(kind)
		}
		return fmt.Sprintf("Booking %s confirmed", b.Reference),
			fmt.Sprintf("<h1>Booking Confirmed</h1><p>Hi %s,</p><p>We received your deposit of %s for %d participant(s) on %s.</p><p>The remaining %s is due by %s.</p>",
				name, FormatAmount(b.DepositAmount, b.Currency), b.ParticipantsCount, date,
				FormatAmount(b.RemainingAmount, b.Currency), dueDate(msg)), nil

	case KindRemainingReminder:
		if b == nil {
			return "", "", errMissingBooking(kind)
		}
		return fmt.Sprintf("Balance due for booking %s", b.Reference),
			fmt.Sprintf("<h1>Remaining Balance</h1><p>Hi %s,</p><p>Your remaining balance of %s for the departure on %s is due by %s.</p><p><a href='%s'>Pay now</a></p>",
				name, FormatAmount(b.RemainingAmount, b.Currency), date, dueDate(msg), html.EscapeString(msg.PaymentURL)), nil

	case KindTripCancellation:
		if b == nil {
			return "", "", errMissingBooking(kind)
		}
		refund := "No payment had been captured for this booking."
		if msg.RefundAmount > 0 {
			refund = fmt.Sprintf("A refund of %s has been issued to your original payment method.", FormatAmount(msg.RefundAmount, b.Currency))
		}
		return fmt.Sprintf("Your trip on %s has been cancelled", date),
			fmt.Sprintf("<h1>Trip Cancelled</h1><p>Hi %s,</p><p>We are sorry to tell you that the departure on %s (booking %s) has been cancelled.</p><p>Reason: %s</p><p>%s</p>",
				name, date, b.Reference, html.EscapeString(msg.Reason), refund), nil

	case KindCapacityExceeded:
		if b == nil {
			return "", "", errMissingBooking(kind)
		}
		refund := "Our team will contact you shortly about returning your deposit."
		if msg.RefundAmount > 0 {
			refund = fmt.Sprintf("Your deposit of %s has been refunded.", FormatAmount(msg.RefundAmount, b.Currency))
		}
		return fmt.Sprintf("Booking %s could not be confirmed", b.Reference),
			fmt.Sprintf("<h1>Sold Out</h1><p>Hi %s,</p><p>The departure on %s filled up while your payment was processing. %s</p>",
				name, date, refund), nil

	case KindAdminMinReached:
		return fmt.Sprintf("Minimum participants reached for %s", date),
			fmt.Sprintf("<h1>Minimum Reached</h1><p>The departure on %s now has %d confirmed participant(s) and can go ahead.</p>", date, msg.Confirmed), nil

	case KindAdminSoldOut:
		return fmt.Sprintf("Departure %s is sold out", date),
			fmt.Sprintf("<h1>Sold Out</h1><p>The departure on %s has reached its capacity with %d confirmed participant(s).</p>", date, msg.Confirmed), nil
	}
	return "", "", fmt.Errorf("unknown notification kind %q", kind)
}

func dueDate(msg Message) string {
	if msg.Booking == nil || msg.Booking.RemainingDueDate == nil {
		return "the departure date"
	}
	return msg.Booking.RemainingDueDate.Format("2006-01-02")
}

func errMissingBooking(kind Kind) error {
	return fmt.Errorf("notification %q needs a booking", kind)
}
