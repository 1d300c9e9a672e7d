package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
	"go.uber.org/zap"
)

// errCapacityRace aborts the settlement transaction when the seats are gone.
var errCapacityRace = errors.New("capacity taken by a concurrent settlement")

type settleOutcome string

const (
	outcomeApplied   settleOutcome = "applied"
	outcomeCancelled settleOutcome = "booking_cancelled"
	outcomeDuplicate settleOutcome = "duplicate"
	outcomeStale     settleOutcome = "stale_state"
)

// PaymentProcessor applies verified provider events to bookings. Deposit
// settlement and seat reservation commit together or not at all; everything
// that talks to the outside world happens after the commit.
type PaymentProcessor struct {
	store    *repository.Store
	gateway  payments.Gateway
	notifier notifications.Notifier
	alerts   AlertQueue
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

func NewPaymentProcessor(store *repository.Store, gateway payments.Gateway, notifier notifications.Notifier, alerts AlertQueue, logger *zap.Logger) *PaymentProcessor {
	return &PaymentProcessor{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		alerts:   alerts,
		logger:   logger,
		now:      time.Now,
	}
}

// Wait blocks until background customer notices have been sent.
func (p *PaymentProcessor) Wait() {
	p.wg.Wait()
}

// HandleEvent returns an error only when the provider should retry delivery.
// Events for unknown bookings and out-of-order balances are acknowledged.
func (p *PaymentProcessor) HandleEvent(ctx context.Context, ev *payments.Event) error {
	if ev == nil || ev.Ignored {
		return nil
	}

	log := p.logger.With(
		zap.String("eventId", ev.ID),
		zap.String("bookingId", ev.BookingID.String()),
		zap.String("paymentType", ev.PaymentType),
		zap.String("eventType", string(ev.Type)))

	var err error
	switch {
	case ev.Type == payments.EventSettlement && ev.PaymentType == models.PaymentTypeRemaining:
		err = p.settleRemaining(ctx, ev, log)
	case ev.Type == payments.EventSettlement:
		err = p.settleDeposit(ctx, ev, log)
	case ev.Type == payments.EventExpiry && ev.PaymentType == models.PaymentTypeRemaining:
		err = p.expireRemaining(ctx, ev, log)
	case ev.Type == payments.EventExpiry:
		err = p.expireDeposit(ctx, ev, log)
	default:
		log.Debug("Ignoring unsupported payment event")
		return nil
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		log.Warn("Payment event for unknown booking")
		return nil
	case errors.Is(err, ErrDepositNotPaid):
		log.Warn("Remaining balance settled before the deposit, event dropped",
			zap.String("transactionId", ev.TransactionID))
		return nil
	case err != nil:
		log.Error("Payment event failed", zap.Error(err))
		return err
	}
	return nil
}

func (p *PaymentProcessor) settleDeposit(ctx context.Context, ev *payments.Event, log *zap.Logger) error {
	var booking *models.Booking
	outcome := outcomeApplied

	err := p.store.Transaction(ctx, func(tx *repository.Store) error {
		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		booking = b

		if b.IsCancelled() {
			outcome = outcomeCancelled
			return nil
		}

		dup, err := tx.HasSucceededPayment(ctx, b.ID, models.PaymentTypeDeposit, ev.TransactionID)
		if err != nil {
			return err
		}
		if dup {
			outcome = outcomeDuplicate
			return nil
		}

		moved, err := tx.TransitionDeposit(ctx, b.ID, models.PaymentStatusPending, models.PaymentStatusPaid)
		if err != nil {
			return err
		}
		if !moved {
			outcome = outcomeStale
			// A cancellation may have committed after the read above.
			if cur, err := tx.GetBooking(ctx, b.ID); err == nil && cur.IsCancelled() {
				outcome = outcomeCancelled
			}
			return nil
		}

		reserved, err := tx.ReserveSpots(ctx, b.TripDateID, b.ParticipantsCount)
		if err != nil {
			return err
		}
		if !reserved {
			return errCapacityRace
		}

		return tx.CreatePayment(ctx, p.capturedPayment(b, ev, models.PaymentTypeDeposit, b.DepositAmount))
	})

	if errors.Is(err, errCapacityRace) {
		return p.reverseCapacityRace(ctx, booking, ev, log)
	}
	if err != nil {
		return fmt.Errorf("settle deposit: %w", err)
	}

	if outcome != outcomeApplied {
		p.logSkipped(log, outcome, ev)
		return nil
	}

	log.Info("Deposit settled", zap.Int("participants", booking.ParticipantsCount))

	if err := p.alerts.EnqueueThresholdCheck(ctx, booking.TripDateID); err != nil {
		log.Error("Could not enqueue threshold check", zap.Error(err))
	}

	booking.DepositStatus = models.PaymentStatusPaid
	p.background(ctx, func(ctx context.Context) {
		notifyCustomer(ctx, p.store, p.notifier, p.logger, p.now(),
			notifications.KindBookingConfirmation, booking, notifications.Message{
				TripDate: p.tripDateFor(ctx, booking),
			})
	})
	return nil
}

// reverseCapacityRace runs after the settlement transaction rolled back: the
// money was captured but the seats are gone, so it goes back to the customer.
func (p *PaymentProcessor) reverseCapacityRace(ctx context.Context, b *models.Booking, ev *payments.Event, log *zap.Logger) error {
	amount := p.eventAmount(ev, b.DepositAmount, log)

	log.Warn("No spots left at settlement, refunding deposit",
		zap.String("transactionId", ev.TransactionID),
		zap.Int64("amount", amount))

	status := models.PaymentRefunded
	failure := ""
	var refundID *string

	refund, err := p.gateway.CreateRefund(ctx, payments.RefundRequest{
		TransactionID: ev.TransactionID,
		Amount:        amount,
		Metadata: map[string]string{
			"bookingId": b.ID.String(),
			"reference": b.Reference,
			"reason":    models.ReasonCapacityExceeded,
		},
	})
	if err != nil {
		status = models.PaymentFailed
		failure = err.Error()
		log.Error("Capacity refund failed, manual follow-up required",
			zap.String("transactionId", ev.TransactionID), zap.Error(err))
	} else {
		refundID = &refund.ID
	}

	// The refund has been attempted, so the ledger row is written whatever
	// happened to the booking meanwhile. Only the status flip depends on the
	// booking still waiting for its deposit.
	moved, recorded := false, false
	err = p.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		moved, err = tx.TransitionDeposit(ctx, b.ID, models.PaymentStatusPending, models.PaymentStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			seen, err := tx.HasRefundRow(ctx, ev.TransactionID)
			if err != nil || seen {
				return err
			}
		}
		recorded = true

		txn := ev.TransactionID
		row := &models.Payment{
			BookingID:        b.ID,
			Provider:         p.gateway.Name(),
			Type:             models.PaymentTypeDeposit,
			Amount:           amount,
			Currency:         p.eventCurrency(ev, b),
			Status:           status,
			ProviderTxnID:    &txn,
			ProviderRefundID: refundID,
			RefundOf:         &txn,
			Metadata:         models.CapacityReversalMetadata(ev.ID, failure),
		}
		if ev.SessionID != "" {
			session := ev.SessionID
			row.ProviderSessionID = &session
		}
		return tx.CreatePayment(ctx, row)
	})
	if err != nil {
		return fmt.Errorf("record capacity reversal: %w", err)
	}
	switch {
	case !recorded:
		log.Info("Capacity reversal already recorded")
		return nil
	case !moved:
		log.Warn("Capacity refund recorded, booking changed while it was issued",
			zap.String("transactionId", ev.TransactionID),
			zap.String("status", status))
		return nil
	}

	b.DepositStatus = models.PaymentStatusCancelled
	refunded := int64(0)
	if status == models.PaymentRefunded {
		refunded = amount
	}
	p.background(ctx, func(ctx context.Context) {
		notifyCustomer(ctx, p.store, p.notifier, p.logger, p.now(),
			notifications.KindCapacityExceeded, b, notifications.Message{
				TripDate:     p.tripDateFor(ctx, b),
				Reason:       models.ReasonCapacityExceeded,
				RefundAmount: refunded,
			})
	})
	return nil
}

func (p *PaymentProcessor) settleRemaining(ctx context.Context, ev *payments.Event, log *zap.Logger) error {
	outcome := outcomeApplied

	err := p.store.Transaction(ctx, func(tx *repository.Store) error {
		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		if b.IsCancelled() {
			outcome = outcomeCancelled
			return nil
		}
		if b.DepositStatus != models.PaymentStatusPaid {
			return ErrDepositNotPaid
		}

		dup, err := tx.HasSucceededPayment(ctx, b.ID, models.PaymentTypeRemaining, ev.TransactionID)
		if err != nil {
			return err
		}
		if dup {
			outcome = outcomeDuplicate
			return nil
		}

		moved, err := tx.MarkRemainingPaid(ctx, b.ID)
		if err != nil {
			return err
		}
		if !moved {
			outcome = outcomeStale
			return nil
		}

		return tx.CreatePayment(ctx, p.capturedPayment(b, ev, models.PaymentTypeRemaining, b.RemainingAmount))
	})
	if err != nil {
		if errors.Is(err, ErrDepositNotPaid) || errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("settle remaining: %w", err)
	}

	if outcome != outcomeApplied {
		p.logSkipped(log, outcome, ev)
		return nil
	}
	log.Info("Remaining balance settled")
	return nil
}

func (p *PaymentProcessor) expireDeposit(ctx context.Context, ev *payments.Event, log *zap.Logger) error {
	outcome := outcomeApplied

	err := p.store.Transaction(ctx, func(tx *repository.Store) error {
		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		if b.IsCancelled() {
			outcome = outcomeCancelled
			return nil
		}

		moved, err := tx.TransitionDeposit(ctx, b.ID, models.PaymentStatusPending, models.PaymentStatusCancelled)
		if err != nil {
			return err
		}
		if !moved {
			outcome = outcomeStale
			return nil
		}
		return tx.CreatePayment(ctx, p.failedPayment(b, ev, models.PaymentTypeDeposit, b.DepositAmount))
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("expire deposit: %w", err)
	}

	if outcome != outcomeApplied {
		p.logSkipped(log, outcome, ev)
		return nil
	}
	log.Info("Deposit session expired, booking released")
	return nil
}

// expireRemaining only records the failed attempt. The balance stays PENDING
// so a new session can be opened.
func (p *PaymentProcessor) expireRemaining(ctx context.Context, ev *payments.Event, log *zap.Logger) error {
	outcome := outcomeApplied

	err := p.store.Transaction(ctx, func(tx *repository.Store) error {
		b, err := tx.GetBooking(ctx, ev.BookingID)
		if err != nil {
			return err
		}
		if b.IsCancelled() {
			outcome = outcomeCancelled
			return nil
		}
		if b.RemainingStatus != models.PaymentStatusPending {
			outcome = outcomeStale
			return nil
		}

		if ev.SessionID != "" {
			seen, err := tx.HasFailedSession(ctx, b.ID, models.PaymentTypeRemaining, ev.SessionID)
			if err != nil {
				return err
			}
			if seen {
				outcome = outcomeDuplicate
				return nil
			}
		}
		return tx.CreatePayment(ctx, p.failedPayment(b, ev, models.PaymentTypeRemaining, b.RemainingAmount))
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("expire remaining: %w", err)
	}

	if outcome != outcomeApplied {
		p.logSkipped(log, outcome, ev)
		return nil
	}
	log.Info("Remaining balance session expired")
	return nil
}

func (p *PaymentProcessor) capturedPayment(b *models.Booking, ev *payments.Event, paymentType string, expected int64) *models.Payment {
	txn := ev.TransactionID
	row := &models.Payment{
		BookingID:     b.ID,
		Provider:      p.gateway.Name(),
		Type:          paymentType,
		Amount:        p.eventAmount(ev, expected, p.logger),
		Currency:      p.eventCurrency(ev, b),
		Status:        models.PaymentSucceeded,
		ProviderTxnID: &txn,
		Metadata:      models.CaptureMetadata(ev.ID),
	}
	if ev.SessionID != "" {
		session := ev.SessionID
		row.ProviderSessionID = &session
	}
	return row
}

func (p *PaymentProcessor) failedPayment(b *models.Booking, ev *payments.Event, paymentType string, amount int64) *models.Payment {
	row := &models.Payment{
		BookingID: b.ID,
		Provider:  p.gateway.Name(),
		Type:      paymentType,
		Amount:    amount,
		Currency:  p.eventCurrency(ev, b),
		Status:    models.PaymentFailed,
		Metadata:  models.ExpiryMetadata(ev.ID),
	}
	if ev.SessionID != "" {
		session := ev.SessionID
		row.ProviderSessionID = &session
	}
	return row
}

// eventAmount prefers what the provider says it captured. A mismatch with
// the booking is logged, not rejected.
func (p *PaymentProcessor) eventAmount(ev *payments.Event, expected int64, log *zap.Logger) int64 {
	if ev.Amount <= 0 {
		return expected
	}
	if ev.Amount != expected {
		log.Warn("Captured amount differs from booking",
			zap.Int64("captured", ev.Amount), zap.Int64("expected", expected))
	}
	return ev.Amount
}

func (p *PaymentProcessor) eventCurrency(ev *payments.Event, b *models.Booking) string {
	if ev.Currency != "" {
		return ev.Currency
	}
	return b.Currency
}

func (p *PaymentProcessor) logSkipped(log *zap.Logger, outcome settleOutcome, ev *payments.Event) {
	if outcome == outcomeCancelled && ev.Type == payments.EventSettlement {
		log.Warn("Money captured for a cancelled booking, manual refund may be needed",
			zap.String("transactionId", ev.TransactionID))
		return
	}
	log.Info("Payment event skipped", zap.String("outcome", string(outcome)))
}

// tripDateFor loads the departure for a notice. Templates cope with a nil
// trip date, so a lookup failure only costs the date line.
func (p *PaymentProcessor) tripDateFor(ctx context.Context, b *models.Booking) *models.TripDate {
	date, err := p.store.GetTripDate(ctx, b.TripDateID)
	if err != nil {
		p.logger.Warn("Could not load trip date for notice",
			zap.String("bookingId", b.ID.String()), zap.Error(err))
		return nil
	}
	return date
}

// background runs post-commit side effects detached from the request so the
// webhook can be acknowledged immediately.
func (p *PaymentProcessor) background(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		fn(ctx)
	}()
}
