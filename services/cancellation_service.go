package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BookingCancellationResult struct {
	BookingID    uuid.UUID `json:"bookingId"`
	Reference    string    `json:"reference"`
	CustomerName string    `json:"customerName"`
	RefundAmount int64     `json:"refundAmount"`
	RefundErrors []string  `json:"refundErrors,omitempty"`
	EmailSent    bool      `json:"emailSent"`
	EmailError   string    `json:"emailError,omitempty"`
	FollowUpLink string    `json:"followUpLink,omitempty"`

	refundsProcessed int
	refundsFailed    int
	refundedNow      int64
	emailAttempted   bool
}

type CancellationSummary struct {
	TripDateID        uuid.UUID                   `json:"tripDateId"`
	TotalBookings     int                         `json:"totalBookings"`
	RefundsProcessed  int                         `json:"refundsProcessed"`
	RefundsFailed     int                         `json:"refundsFailed"`
	EmailsSent        int                         `json:"emailsSent"`
	EmailsFailed      int                         `json:"emailsFailed"`
	TotalRefundAmount int64                       `json:"totalRefundAmount"`
	Bookings          []BookingCancellationResult `json:"bookings"`
}

func (s *CancellationSummary) add(r BookingCancellationResult) {
	s.TotalBookings++
	s.RefundsProcessed += r.refundsProcessed
	s.RefundsFailed += r.refundsFailed
	s.TotalRefundAmount += r.refundedNow
	if r.emailAttempted {
		if r.EmailSent {
			s.EmailsSent++
		} else {
			s.EmailsFailed++
		}
	}
	s.Bookings = append(s.Bookings, r)
}

// CancellationService cancels a whole departure: it refunds every captured
// payment, closes each booking and notifies the customers. Per-booking
// failures are reported in the summary and never stop the run.
type CancellationService struct {
	store    *repository.Store
	gateway  payments.Gateway
	notifier notifications.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewCancellationService(store *repository.Store, gateway payments.Gateway, notifier notifications.Notifier, logger *zap.Logger) *CancellationService {
	return &CancellationService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *CancellationService) CancelTripDate(ctx context.Context, tripDateID uuid.UUID, reason string) (*CancellationSummary, error) {
	date, err := s.store.GetTripDate(ctx, tripDateID)
	if err != nil {
		return nil, fmt.Errorf("load trip date: %w", err)
	}
	if date.CancelledAt != nil {
		return nil, ErrAlreadyCancelled
	}

	bookings, err := s.store.ListActiveBookings(ctx, tripDateID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	s.logger.Info("Cancelling trip date",
		zap.String("tripDateId", tripDateID.String()),
		zap.Int("bookings", len(bookings)),
		zap.String("reason", reason))

	summary := &CancellationSummary{
		TripDateID: tripDateID,
		Bookings:   make([]BookingCancellationResult, 0, len(bookings)),
	}
	for i := range bookings {
		summary.add(s.cancelBooking(ctx, date, &bookings[i], reason))
	}

	if err := s.store.MarkTripDateCancelled(ctx, tripDateID, s.now()); err != nil {
		return summary, fmt.Errorf("mark trip date cancelled: %w", err)
	}

	// Bookings created while the run was in progress were not listed above.
	late, err := s.store.ListActiveBookings(ctx, tripDateID)
	if err != nil {
		return summary, fmt.Errorf("list late bookings: %w", err)
	}
	for i := range late {
		s.logger.Warn("Cancelling booking created during trip date cancellation",
			zap.String("bookingId", late[i].ID.String()))
		summary.add(s.cancelBooking(ctx, date, &late[i], reason))
	}

	s.logger.Info("Trip date cancelled",
		zap.String("tripDateId", tripDateID.String()),
		zap.Int("refundsProcessed", summary.RefundsProcessed),
		zap.Int("refundsFailed", summary.RefundsFailed),
		zap.Int("emailsSent", summary.EmailsSent),
		zap.Int("emailsFailed", summary.EmailsFailed),
		zap.Int64("totalRefundAmount", summary.TotalRefundAmount))
	return summary, nil
}

// maxCancelAttempts bounds how often a booking is re-read when payments keep
// landing while it is being cancelled.
const maxCancelAttempts = 3

// refundPass is the outcome of refunding every capture of a booking once.
// Captures refunded by an earlier pass are counted in amount but not in fresh.
type refundPass struct {
	amount      int64
	refunded    map[string]bool
	errors      []string
	failed      int
	fresh       int
	freshAmount int64
}

func (s *CancellationService) cancelBooking(ctx context.Context, date *models.TripDate, b *models.Booking, reason string) BookingCancellationResult {
	res := BookingCancellationResult{
		BookingID:    b.ID,
		Reference:    b.Reference,
		CustomerName: b.CustomerName,
		FollowUpLink: notifications.FollowUpLink(b, date.Date.Format("2006-01-02")),
	}
	log := s.logger.With(zap.String("bookingId", b.ID.String()), zap.String("reference", b.Reference))

	var update repository.BookingCancellation
	for attempt := 1; ; attempt++ {
		pass, err := s.refundCaptures(ctx, date, b, reason, log)
		if err != nil {
			log.Error("Could not load payments", zap.Error(err))
			res.RefundErrors = append(res.RefundErrors, "load payments: "+err.Error())
			res.refundsFailed++
			return res
		}
		res.refundsProcessed += pass.fresh
		res.refundedNow += pass.freshAmount
		res.RefundAmount = pass.amount
		res.RefundErrors = pass.errors
		res.refundsFailed = pass.failed

		update = cancellationFor(b, pass, reason, s.now())
		ok, err := s.store.CancelBooking(ctx, b.ID, update)
		if err != nil {
			log.Error("Could not update booking", zap.Error(err))
			res.RefundErrors = append(res.RefundErrors, "update booking: "+err.Error())
			return res
		}
		if ok {
			break
		}

		current, err := s.store.GetBooking(ctx, b.ID)
		if err != nil {
			log.Error("Could not reload booking", zap.Error(err))
			res.RefundErrors = append(res.RefundErrors, "reload booking: "+err.Error())
			return res
		}
		if current.IsCancelled() {
			log.Warn("Booking was cancelled concurrently")
			return res
		}
		if attempt == maxCancelAttempts {
			log.Error("Payment state kept changing, booking left open",
				zap.String("depositStatus", current.DepositStatus),
				zap.String("remainingStatus", current.RemainingStatus))
			res.RefundErrors = append(res.RefundErrors, "update booking: payment state kept changing")
			return res
		}
		log.Warn("Payment landed during cancellation, refunding again",
			zap.String("depositStatus", current.DepositStatus),
			zap.String("remainingStatus", current.RemainingStatus))
		b = current
	}

	if b.LastEmailWas(models.EmailTypeCancellation) {
		return res
	}

	b.CancelledAt = &update.CancelledAt
	b.CancelReason = &reason
	b.DepositStatus = update.DepositStatus
	b.RemainingStatus = update.RemainingStatus
	b.RefundAmount = res.RefundAmount

	res.emailAttempted = true
	sent := notifyCustomer(ctx, s.store, s.notifier, s.logger, update.CancelledAt,
		notifications.KindTripCancellation, b, notifications.Message{
			TripDate:     date,
			Reason:       reason,
			RefundAmount: res.RefundAmount,
		})
	res.EmailSent = sent.Success
	if !sent.Success && sent.Err != nil {
		res.EmailError = sent.Err.Error()
	}
	return res
}

func (s *CancellationService) refundCaptures(ctx context.Context, date *models.TripDate, b *models.Booking, reason string, log *zap.Logger) (refundPass, error) {
	pass := refundPass{refunded: map[string]bool{}}

	captures, err := s.store.SucceededCaptures(ctx, b.ID)
	if err != nil {
		return pass, err
	}
	for _, pay := range captures {
		amount, fresh, err := s.refundCapture(ctx, date, b, pay, reason)
		if err != nil {
			log.Error("Refund failed", zap.String("paymentId", pay.ID.String()), zap.Error(err))
			pass.errors = append(pass.errors, err.Error())
			pass.failed++
			continue
		}
		pass.refunded[pay.Type] = true
		pass.amount += amount
		if fresh {
			pass.fresh++
			pass.freshAmount += amount
		}
	}
	return pass, nil
}

// cancellationFor derives the terminal statuses from what was refunded. The
// statuses the booking was read with become the guard of the update.
func cancellationFor(b *models.Booking, pass refundPass, reason string, now time.Time) repository.BookingCancellation {
	update := repository.BookingCancellation{
		ExpectDepositStatus:   b.DepositStatus,
		ExpectRemainingStatus: b.RemainingStatus,
		CancelledAt:           now,
		Reason:                reason,
		DepositStatus:         models.PaymentStatusCancelled,
		RemainingStatus:       b.RemainingStatus,
		RefundAmount:          pass.amount,
	}
	if pass.amount > 0 {
		update.DepositStatus = models.PaymentStatusRefunded
		update.RefundedAt = &now
	}
	switch {
	case b.RemainingStatus == models.PaymentStatusPaid && pass.refunded[models.PaymentTypeRemaining]:
		update.RemainingStatus = models.PaymentStatusRefunded
	case b.RemainingStatus == models.PaymentStatusPending:
		update.RemainingStatus = models.PaymentStatusCancelled
	}
	return update
}

// refundCapture returns the refunded amount and whether the refund happened
// in this run. A capture refunded by an earlier run is reported but not sent
// to the provider again.
func (s *CancellationService) refundCapture(ctx context.Context, date *models.TripDate, b *models.Booking, pay models.Payment, reason string) (int64, bool, error) {
	if pay.ProviderTxnID == nil || *pay.ProviderTxnID == "" {
		return 0, false, fmt.Errorf("%s payment %s has no provider transaction", pay.Type, pay.ID)
	}
	txn := *pay.ProviderTxnID

	existing, err := s.store.RefundFor(ctx, txn)
	if err != nil {
		return 0, false, fmt.Errorf("check refund of %s: %w", txn, err)
	}
	if existing != nil {
		return existing.Amount, false, nil
	}

	row := &models.Payment{
		BookingID: b.ID,
		Provider:  s.gateway.Name(),
		Type:      models.PaymentTypeRefund,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		RefundOf:  &txn,
	}

	refund, refundErr := s.gateway.CreateRefund(ctx, payments.RefundRequest{
		TransactionID: txn,
		Amount:        pay.Amount,
		Metadata: map[string]string{
			"bookingId":  b.ID.String(),
			"tripDateId": date.ID.String(),
			"reason":     "TRIP_CANCELLED",
		},
	})
	if refundErr != nil {
		row.Status = models.PaymentFailed
		row.Metadata = models.RefundMetadata(reason, refundErr.Error())
		if err := s.store.CreatePayment(ctx, row); err != nil {
			s.logger.Error("Could not record failed refund", zap.String("transactionId", txn), zap.Error(err))
		}
		return 0, false, fmt.Errorf("refund %s: %w", txn, refundErr)
	}

	row.Status = models.PaymentRefunded
	row.ProviderRefundID = &refund.ID
	row.Metadata = models.RefundMetadata(reason, "")
	if err := s.store.CreatePayment(ctx, row); err != nil {
		// The money has moved; the provider idempotency key keeps a rerun safe.
		s.logger.Error("Refund issued but not recorded",
			zap.String("transactionId", txn), zap.String("refundId", refund.ID), zap.Error(err))
	}
	return pay.Amount, true, nil
}
