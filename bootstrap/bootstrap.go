// Package bootstrap assembles the booking engine from configuration. The API
// server and the admin CLI share it so both run the same service graph.
package bootstrap

import (
	"fmt"

	config "github.com/anjiri1684/tour_booking/configs"
	"github.com/anjiri1684/tour_booking/database"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
	"github.com/anjiri1684/tour_booking/services"
	"github.com/anjiri1684/tour_booking/utils"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	AlertQueueInProcess = "inprocess"
	AlertQueueAsynq     = "asynq"
)

type App struct {
	Config config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Store  *repository.Store

	Stripe   *payments.StripeService
	Notifier notifications.Notifier

	Thresholds    *services.ThresholdDispatcher
	Alerts        services.AlertQueue
	Bookings      *services.BookingService
	Payments      *services.PaymentProcessor
	Cancellations *services.CancellationService
	Reminders     *services.ReminderService

	inProcess *services.InProcessAlertQueue
	asynq     *services.AsynqAlertQueue
}

func New(cfg config.Config) (*App, error) {
	logger := utils.NewLogger(cfg.IsProduction())

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Store:  repository.New(db),
		Stripe: payments.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.PublicBaseURL),
		Notifier: notifications.NewBrevoService(
			cfg.BrevoAPIKey, cfg.EmailSender, cfg.EmailSenderName, logger.Named("email")),
	}

	a.Thresholds = services.NewThresholdDispatcher(a.Store, a.Notifier, cfg.AdminEmail, logger.Named("thresholds"))

	switch cfg.AlertQueue {
	case AlertQueueAsynq:
		a.asynq = services.NewAsynqAlertQueue(cfg.RedisAddr, logger.Named("alerts"))
		a.Alerts = a.asynq
	case AlertQueueInProcess, "":
		a.inProcess = services.NewInProcessAlertQueue(a.Thresholds, logger.Named("alerts"))
		a.Alerts = a.inProcess
	default:
		return nil, fmt.Errorf("unknown alert queue %q", cfg.AlertQueue)
	}

	coupons := services.NewCouponService(a.Store)
	a.Bookings = services.NewBookingService(a.Store, a.Stripe, coupons, logger.Named("bookings"))
	a.Payments = services.NewPaymentProcessor(a.Store, a.Stripe, a.Notifier, a.Alerts, logger.Named("payments"))
	a.Cancellations = services.NewCancellationService(a.Store, a.Stripe, a.Notifier, logger.Named("cancellations"))
	a.Reminders = services.NewReminderService(a.Store, a.Bookings, a.Notifier, cfg.ReminderWindowDays, logger.Named("reminders"))

	return a, nil
}

// ThresholdWorker returns the asynq server consuming threshold checks, or nil
// when checks run in-process.
func (a *App) ThresholdWorker() (*asynq.Server, *asynq.ServeMux) {
	if a.asynq == nil {
		return nil, nil
	}
	return services.NewThresholdWorker(a.Config.RedisAddr, a.Thresholds, a.Logger.Named("alerts"))
}

// Close drains background work and releases connections.
func (a *App) Close() {
	a.Payments.Wait()
	if a.inProcess != nil {
		a.inProcess.Wait()
	}
	if a.asynq != nil {
		if err := a.asynq.Close(); err != nil {
			a.Logger.Warn("Closing alert queue", zap.Error(err))
		}
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.Logger.Sync()
}
