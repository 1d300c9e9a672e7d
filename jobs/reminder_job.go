package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/tour_booking/services"
	"go.uber.org/zap"
)

// SendRemainingReminders returns the cron entry that reminds customers of
// balances falling due.
func SendRemainingReminders(reminders *services.ReminderService, logger *zap.Logger) func() {
	return func() {
		logger.Debug("Running job: SendRemainingReminders")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := reminders.SendRemainingReminders(ctx, time.Now()); err != nil {
			logger.Error("Remaining balance reminders failed", zap.Error(err))
		}
	}
}
