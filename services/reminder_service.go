package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/repository"
	"go.uber.org/zap"
)

type ReminderReport struct {
	Due    int `json:"due"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// ReminderService asks customers for their balance once it falls due within
// the configured window. Each booking is reminded once.
type ReminderService struct {
	store    *repository.Store
	bookings *BookingService
	notifier notifications.Notifier
	window   time.Duration
	logger   *zap.Logger
}

func NewReminderService(store *repository.Store, bookings *BookingService, notifier notifications.Notifier, windowDays int, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		store:    store,
		bookings: bookings,
		notifier: notifier,
		window:   time.Duration(windowDays) * 24 * time.Hour,
		logger:   logger,
	}
}

func (s *ReminderService) SendRemainingReminders(ctx context.Context, now time.Time) (ReminderReport, error) {
	var report ReminderReport

	due, err := s.store.ListRemainingDue(ctx, now.Add(s.window))
	if err != nil {
		return report, fmt.Errorf("list remaining balances: %w", err)
	}
	report.Due = len(due)

	for i := range due {
		b := &due[i]

		sess, err := s.bookings.CreateRemainingSession(ctx, b.ID)
		if err != nil {
			s.logger.Error("Could not open remaining session",
				zap.String("bookingId", b.ID.String()), zap.Error(err))
			report.Failed++
			continue
		}

		res := notifyCustomer(ctx, s.store, s.notifier, s.logger, now,
			notifications.KindRemainingReminder, b, notifications.Message{PaymentURL: sess.URL})
		if res.Success {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	if report.Due > 0 {
		s.logger.Info("Remaining balance reminders processed",
			zap.Int("due", report.Due), zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	}
	return report, nil
}
