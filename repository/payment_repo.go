package repository

import (
	"context"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/google/uuid"
)

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.with(ctx).Create(p).Error
}

func (s *Store) ListPayments(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.with(ctx).Where("booking_id = ?", bookingID).Order("created_at asc").Find(&payments).Error
	return payments, err
}

// HasSucceededPayment is the settlement idempotency check.
func (s *Store) HasSucceededPayment(ctx context.Context, bookingID uuid.UUID, paymentType, txnID string) (bool, error) {
	var count int64
	err := s.with(ctx).Model(&models.Payment{}).
		Where("booking_id = ? AND type = ? AND status = ? AND provider_txn_id = ?",
			bookingID, paymentType, models.PaymentSucceeded, txnID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) HasFailedSession(ctx context.Context, bookingID uuid.UUID, paymentType, sessionID string) (bool, error) {
	var count int64
	err := s.with(ctx).Model(&models.Payment{}).
		Where("booking_id = ? AND type = ? AND status = ? AND provider_session_id = ?",
			bookingID, paymentType, models.PaymentFailed, sessionID).
		Count(&count).Error
	return count > 0, err
}

// HasRefundRow reports whether any ledger row, refunded or failed, already
// records a refund attempt for the provider transaction.
func (s *Store) HasRefundRow(ctx context.Context, txnID string) (bool, error) {
	var count int64
	err := s.with(ctx).Model(&models.Payment{}).
		Where("refund_of = ?", txnID).
		Count(&count).Error
	return count > 0, err
}

// SucceededCaptures lists the money actually taken for a booking: deposit and
// remaining rows that succeeded.
func (s *Store) SucceededCaptures(ctx context.Context, bookingID uuid.UUID) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.with(ctx).
		Where("booking_id = ? AND status = ? AND type <> ?", bookingID, models.PaymentSucceeded, models.PaymentTypeRefund).
		Order("created_at asc").
		Find(&payments).Error
	return payments, err
}

// RefundFor returns the successful refund row for a provider transaction, or
// nil when none exists.
func (s *Store) RefundFor(ctx context.Context, txnID string) (*models.Payment, error) {
	var payments []models.Payment
	err := s.with(ctx).
		Where("type = ? AND status = ? AND refund_of = ?", models.PaymentTypeRefund, models.PaymentRefunded, txnID).
		Limit(1).
		Find(&payments).Error
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}
