package repository

import (
	"context"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) CreateTrip(ctx context.Context, t *models.Trip) error {
	return s.with(ctx).Create(t).Error
}

func (s *Store) CreateTripDate(ctx context.Context, d *models.TripDate) error {
	return s.with(ctx).Omit("Trip").Create(d).Error
}

func (s *Store) GetTripDate(ctx context.Context, id uuid.UUID) (*models.TripDate, error) {
	var d models.TripDate
	if err := s.with(ctx).Preload("Trip").First(&d, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// ReserveSpots adds n seats to the ledger only if they still fit and the date
// has not been cancelled. It reports false when the seats were not taken.
func (s *Store) ReserveSpots(ctx context.Context, tripDateID uuid.UUID, n int) (bool, error) {
	res := s.with(ctx).Model(&models.TripDate{}).
		Where("id = ? AND cancelled_at IS NULL AND reserved_spots + ? <= capacity", tripDateID, n).
		Update("reserved_spots", gorm.Expr("reserved_spots + ?", n))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ConfirmedParticipants sums the seats of every non-cancelled booking whose
// deposit has been captured.
func (s *Store) ConfirmedParticipants(ctx context.Context, tripDateID uuid.UUID) (int, error) {
	var total int64
	err := s.with(ctx).Model(&models.Booking{}).
		Select("COALESCE(SUM(participants_count), 0)").
		Where("trip_date_id = ? AND deposit_status = ? AND cancelled_at IS NULL", tripDateID, models.PaymentStatusPaid).
		Scan(&total).Error
	return int(total), err
}

// MarkMinReached sets min_reached_at if nobody has yet. Exactly one caller
// ever gets true back for a given trip date.
func (s *Store) MarkMinReached(ctx context.Context, tripDateID uuid.UUID, at time.Time) (bool, error) {
	res := s.with(ctx).Model(&models.TripDate{}).
		Where("id = ? AND min_reached_at IS NULL", tripDateID).
		Update("min_reached_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSoldOut sets max_reached_at and flips the status in the same statement.
// Cancelled dates are never marked.
func (s *Store) MarkSoldOut(ctx context.Context, tripDateID uuid.UUID, at time.Time) (bool, error) {
	res := s.with(ctx).Model(&models.TripDate{}).
		Where("id = ? AND max_reached_at IS NULL AND cancelled_at IS NULL", tripDateID).
		Updates(map[string]interface{}{
			"max_reached_at": at,
			"status":         models.TripDateSoldOut,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkTripDateCancelled is unconditional on purpose: a cancelled date holds no
// reservations no matter how the per-booking work went.
func (s *Store) MarkTripDateCancelled(ctx context.Context, tripDateID uuid.UUID, at time.Time) error {
	res := s.with(ctx).Model(&models.TripDate{}).
		Where("id = ?", tripDateID).
		Updates(map[string]interface{}{
			"cancelled_at":   at,
			"status":         models.TripDateCancelled,
			"reserved_spots": 0,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
