package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
	"github.com/anjiri1684/tour_booking/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidParticipants = errors.New("participants count must be at least 1")

type Contact struct {
	Name  string
	Email string
	Phone string
}

type CreateBookingInput struct {
	TripDateID        uuid.UUID
	Contact           Contact
	ParticipantsCount int
	CouponCode        string
}

type Availability struct {
	TripDateID uuid.UUID `json:"trip_date_id"`
	Date       time.Time `json:"date"`
	Capacity   int       `json:"capacity"`
	Available  int       `json:"available"`
	Status     string    `json:"status"`
}

type BookingService struct {
	store   *repository.Store
	gateway payments.Gateway
	coupons CouponValidator
	logger  *zap.Logger
}

func NewBookingService(store *repository.Store, gateway payments.Gateway, coupons CouponValidator, logger *zap.Logger) *BookingService {
	return &BookingService{store: store, gateway: gateway, coupons: coupons, logger: logger}
}

// CreateBooking validates spots against the ledger, prices the booking and
// opens the deposit session. The spot check takes no lock: exclusivity is only
// enforced when the deposit settles.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if in.ParticipantsCount < 1 {
		return nil, ErrInvalidParticipants
	}

	date, err := s.store.GetTripDate(ctx, in.TripDateID)
	if err != nil {
		return nil, fmt.Errorf("load trip date: %w", err)
	}
	if !date.IsBookable() {
		return nil, ErrTripDateClosed
	}
	if date.Trip == nil {
		return nil, fmt.Errorf("trip date %s has no trip", date.ID)
	}
	if date.AvailableSpots() < in.ParticipantsCount {
		return nil, ErrCapacityExceeded
	}

	percentOff := 0
	var couponCode *string
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		res, err := s.coupons.Validate(ctx, code, in.ParticipantsCount)
		if err != nil {
			return nil, fmt.Errorf("validate coupon: %w", err)
		}
		if !res.Valid {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCoupon, res.Reason)
		}
		percentOff = res.PercentOff
		upper := strings.ToUpper(code)
		couponCode = &upper
	}

	quote := QuoteBooking(date.Trip, in.ParticipantsCount, percentOff)
	if quote.Deposit <= 0 {
		if couponCode != nil {
			return nil, fmt.Errorf("%w: nothing left to pay", ErrInvalidCoupon)
		}
		return nil, fmt.Errorf("trip %s has no price configured", date.Trip.ID)
	}

	ref, err := utils.GenerateUniqueBookingReference(s.store.DB().WithContext(ctx))
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		Reference:         ref,
		TripDateID:        date.ID,
		CustomerName:      in.Contact.Name,
		CustomerEmail:     strings.ToLower(strings.TrimSpace(in.Contact.Email)),
		CustomerPhone:     in.Contact.Phone,
		ParticipantsCount: in.ParticipantsCount,
		TotalPrice:        quote.Total,
		DepositAmount:     quote.Deposit,
		RemainingAmount:   quote.Remaining,
		DiscountAmount:    quote.Discount,
		Currency:          date.Trip.Currency,
		CouponCode:        couponCode,
		DepositStatus:     models.PaymentStatusPending,
		RemainingStatus:   models.PaymentStatusPending,
		RemainingDueDate:  RemainingDueDate(date.Trip, date.Date, quote.Remaining),
	}
	if err := s.store.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	sess, err := s.gateway.CreatePaymentSession(ctx, payments.SessionRequest{
		BookingID:     booking.ID,
		Reference:     booking.Reference,
		PaymentType:   models.PaymentTypeDeposit,
		Amount:        booking.DepositAmount,
		Currency:      booking.Currency,
		CustomerEmail: booking.CustomerEmail,
		CustomerName:  booking.CustomerName,
		Description:   fmt.Sprintf("Deposit - %s (%s)", date.Trip.Title, date.Date.Format("2006-01-02")),
	})
	if err != nil {
		s.logger.Error("Payment session could not be opened",
			zap.String("bookingId", booking.ID.String()), zap.Error(err))
		return booking, fmt.Errorf("open deposit session: %w", err)
	}

	if err := s.store.SetDepositSession(ctx, booking.ID, sess.ID, sess.URL); err != nil {
		return booking, fmt.Errorf("store deposit session: %w", err)
	}
	booking.DepositSessionID = &sess.ID
	booking.PaymentURL = &sess.URL

	s.logger.Info("Booking created",
		zap.String("bookingId", booking.ID.String()),
		zap.String("reference", booking.Reference),
		zap.Int("participants", booking.ParticipantsCount),
		zap.Int64("deposit", booking.DepositAmount))
	return booking, nil
}

// CreateRemainingSession opens the checkout for the balance of a booking whose
// deposit is already captured.
func (s *BookingService) CreateRemainingSession(ctx context.Context, bookingID uuid.UUID) (*payments.Session, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking: %w", err)
	}
	if booking.IsCancelled() {
		return nil, ErrBookingCancelled
	}
	if booking.DepositStatus != models.PaymentStatusPaid ||
		booking.RemainingStatus != models.PaymentStatusPending ||
		booking.RemainingAmount <= 0 {
		return nil, ErrNothingDue
	}

	date, err := s.store.GetTripDate(ctx, booking.TripDateID)
	if err != nil {
		return nil, fmt.Errorf("load trip date: %w", err)
	}
	title := "Trip"
	if date.Trip != nil {
		title = date.Trip.Title
	}

	sess, err := s.gateway.CreatePaymentSession(ctx, payments.SessionRequest{
		BookingID:     booking.ID,
		Reference:     booking.Reference,
		PaymentType:   models.PaymentTypeRemaining,
		Amount:        booking.RemainingAmount,
		Currency:      booking.Currency,
		CustomerEmail: booking.CustomerEmail,
		CustomerName:  booking.CustomerName,
		Description:   fmt.Sprintf("Balance - %s (%s)", title, date.Date.Format("2006-01-02")),
	})
	if err != nil {
		return nil, fmt.Errorf("open remaining session: %w", err)
	}
	if err := s.store.SetRemainingSession(ctx, booking.ID, sess.ID, sess.URL); err != nil {
		return nil, fmt.Errorf("store remaining session: %w", err)
	}
	return sess, nil
}

func (s *BookingService) Availability(ctx context.Context, tripDateID uuid.UUID) (*Availability, error) {
	date, err := s.store.GetTripDate(ctx, tripDateID)
	if err != nil {
		return nil, err
	}
	available := date.AvailableSpots()
	if !date.IsBookable() {
		available = 0
	}
	return &Availability{
		TripDateID: date.ID,
		Date:       date.Date,
		Capacity:   date.Capacity,
		Available:  available,
		Status:     date.Status,
	}, nil
}

func (s *BookingService) ListBookings(ctx context.Context, tripDateID uuid.UUID) ([]models.Booking, error) {
	if _, err := s.store.GetTripDate(ctx, tripDateID); err != nil {
		return nil, err
	}
	return s.store.ListBookings(ctx, tripDateID)
}
