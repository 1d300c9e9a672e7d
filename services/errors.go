package services

import (
	"errors"

	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
)

var (
	ErrNotFound         = repository.ErrNotFound
	ErrCapacityExceeded = errors.New("not enough spots left on this date")
	ErrInvalidCoupon    = errors.New("invalid coupon")
	ErrTripDateClosed   = errors.New("trip date is not open for booking")
	ErrAlreadyCancelled = errors.New("trip date already cancelled")
	ErrDepositNotPaid   = errors.New("remaining balance settled before deposit")
	ErrInvalidEvent     = payments.ErrUnverifiedEvent
	ErrBookingCancelled = errors.New("booking is cancelled")
	ErrNothingDue       = errors.New("no remaining balance is due for this booking")
)
