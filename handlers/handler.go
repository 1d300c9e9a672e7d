package handlers

import (
	"errors"

	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New()

type Handler struct {
	Bookings      *services.BookingService
	Payments      *services.PaymentProcessor
	Verifier      payments.EventVerifier
	Cancellations *services.CancellationService
	Thresholds    *services.ThresholdDispatcher
	Logger        *zap.Logger
}

// statusFor maps service sentinels to HTTP codes. Anything unknown is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrCapacityExceeded),
		errors.Is(err, services.ErrTripDateClosed),
		errors.Is(err, services.ErrAlreadyCancelled),
		errors.Is(err, services.ErrBookingCancelled),
		errors.Is(err, services.ErrNothingDue):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrInvalidCoupon):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, services.ErrInvalidParticipants),
		errors.Is(err, services.ErrInvalidEvent):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	if code == fiber.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func invalidParam(c *fiber.Ctx, name string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid " + name})
}
