package services

import (
	"context"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/repository"
	"go.uber.org/zap"
)

// emailTypes maps notice kinds to the marker stored on the booking.
var emailTypes = map[notifications.Kind]string{
	notifications.KindBookingConfirmation: models.EmailTypeConfirmation,
	notifications.KindRemainingReminder:   models.EmailTypeRemaining,
	notifications.KindTripCancellation:    models.EmailTypeCancellation,
	notifications.KindCapacityExceeded:    models.EmailTypeCapacityExceeded,
}

// notifyCustomer sends a customer notice and, when it was delivered, records
// the delivery on the booking. A recording failure is logged but the result
// still reports the send as successful.
func notifyCustomer(ctx context.Context, store *repository.Store, notifier notifications.Notifier, logger *zap.Logger,
	at time.Time, kind notifications.Kind, b *models.Booking, msg notifications.Message) notifications.Result {

	msg.ToEmail = b.CustomerEmail
	msg.ToName = b.CustomerName
	msg.Booking = b

	res := notifier.Send(ctx, kind, msg)
	if !res.Success {
		logger.Warn("Customer notification failed",
			zap.String("bookingId", b.ID.String()),
			zap.String("kind", string(kind)),
			zap.Error(res.Err))
		return res
	}

	if emailType, ok := emailTypes[kind]; ok {
		if err := store.RecordEmail(ctx, b.ID, emailType, res.MessageID, at); err != nil {
			logger.Error("Could not record email delivery",
				zap.String("bookingId", b.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	return res
}
