package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/google/uuid"
)

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	return s.with(ctx).Create(b).Error
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := s.with(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, tripDateID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.with(ctx).
		Where("trip_date_id = ?", tripDateID).
		Order("created_at asc").
		Find(&bookings).Error
	return bookings, err
}

// ListActiveBookings returns every booking of the date that has not been
// cancelled yet, whatever its payment state.
func (s *Store) ListActiveBookings(ctx context.Context, tripDateID uuid.UUID) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.with(ctx).
		Where("trip_date_id = ? AND cancelled_at IS NULL", tripDateID).
		Order("created_at asc").
		Find(&bookings).Error
	return bookings, err
}

// ListRemainingDue finds bookings whose balance falls due before the given
// time and that have not been reminded yet.
func (s *Store) ListRemainingDue(ctx context.Context, dueBefore time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.with(ctx).
		Where("deposit_status = ? AND remaining_status = ? AND cancelled_at IS NULL", models.PaymentStatusPaid, models.PaymentStatusPending).
		Where("remaining_amount > 0 AND remaining_due_date IS NOT NULL AND remaining_due_date <= ?", dueBefore).
		Where("remaining_email_sent_at IS NULL").
		Order("remaining_due_date asc").
		Find(&bookings).Error
	return bookings, err
}

func (s *Store) SetDepositSession(ctx context.Context, bookingID uuid.UUID, sessionID, url string) error {
	return s.with(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{"deposit_session_id": sessionID, "payment_url": url}).Error
}

func (s *Store) SetRemainingSession(ctx context.Context, bookingID uuid.UUID, sessionID, url string) error {
	return s.with(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Updates(map[string]interface{}{"remaining_session_id": sessionID, "payment_url": url}).Error
}

// TransitionDeposit moves the deposit axis from one state to another. Cancelled
// bookings never match, which is what keeps them terminal.
func (s *Store) TransitionDeposit(ctx context.Context, bookingID uuid.UUID, from, to string) (bool, error) {
	res := s.with(ctx).Model(&models.Booking{}).
		Where("id = ? AND deposit_status = ? AND cancelled_at IS NULL", bookingID, from).
		Update("deposit_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRemainingPaid only succeeds on top of a captured deposit.
func (s *Store) MarkRemainingPaid(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	res := s.with(ctx).Model(&models.Booking{}).
		Where("id = ? AND remaining_status = ? AND deposit_status = ? AND cancelled_at IS NULL",
			bookingID, models.PaymentStatusPending, models.PaymentStatusPaid).
		Update("remaining_status", models.PaymentStatusPaid)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type BookingCancellation struct {
	// Expected statuses guard against a payment landing between reading the
	// booking and stamping it. Empty means no guard.
	ExpectDepositStatus   string
	ExpectRemainingStatus string

	CancelledAt     time.Time
	Reason          string
	DepositStatus   string
	RemainingStatus string
	RefundAmount    int64
	RefundedAt      *time.Time
}

// CancelBooking stamps the terminal fields. It reports false when the booking
// had already been cancelled or its payment statuses moved since the caller
// read them.
func (s *Store) CancelBooking(ctx context.Context, bookingID uuid.UUID, c BookingCancellation) (bool, error) {
	updates := map[string]interface{}{
		"cancelled_at":     c.CancelledAt,
		"cancel_reason":    c.Reason,
		"deposit_status":   c.DepositStatus,
		"remaining_status": c.RemainingStatus,
		"refund_amount":    c.RefundAmount,
	}
	if c.RefundedAt != nil {
		updates["refunded_at"] = *c.RefundedAt
	}
	q := s.with(ctx).Model(&models.Booking{}).
		Where("id = ? AND cancelled_at IS NULL", bookingID)
	if c.ExpectDepositStatus != "" {
		q = q.Where("deposit_status = ?", c.ExpectDepositStatus)
	}
	if c.ExpectRemainingStatus != "" {
		q = q.Where("remaining_status = ?", c.ExpectRemainingStatus)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecordEmail stores the delivery marker shared by all notice types, plus the
// per-type columns where the booking has them.
func (s *Store) RecordEmail(ctx context.Context, bookingID uuid.UUID, emailType, messageID string, at time.Time) error {
	updates := map[string]interface{}{
		"last_email_sent_at":    at,
		"last_email_type":       emailType,
		"last_email_message_id": messageID,
	}
	switch emailType {
	case models.EmailTypeRemaining:
		updates["remaining_email_sent_at"] = at
		updates["remaining_email_message_id"] = messageID
	case models.EmailTypeCancellation:
		updates["cancellation_email_sent_at"] = at
		updates["cancellation_email_message_id"] = messageID
	}
	return s.with(ctx).Model(&models.Booking{}).Where("id = ?", bookingID).Updates(updates).Error
}
