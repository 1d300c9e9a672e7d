package handlers

import (
	"errors"

	"github.com/anjiri1684/tour_booking/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateBookingRequest struct {
	TripDateID   string `json:"trip_date_id" validate:"required,uuid"`
	Name         string `json:"name" validate:"required,min=2,max=255"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone,omitempty" validate:"omitempty,min=7,max=30"`
	Participants int    `json:"participants" validate:"required,min=1,max=100"`
	CouponCode   string `json:"coupon_code,omitempty" validate:"omitempty,max=50"`
}

func (h *Handler) CreateBooking(c *fiber.Ctx) error {
	var req CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	tripDateID, _ := uuid.Parse(req.TripDateID)

	booking, err := h.Bookings.CreateBooking(c.UserContext(), services.CreateBookingInput{
		TripDateID:        tripDateID,
		Contact:           services.Contact{Name: req.Name, Email: req.Email, Phone: req.Phone},
		ParticipantsCount: req.Participants,
		CouponCode:        req.CouponCode,
	})
	if err != nil {
		if booking != nil && statusFor(err) == fiber.StatusInternalServerError {
			h.Logger.Error("Booking saved without payment session",
				zap.String("bookingId", booking.ID.String()), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":     "Payment provider unavailable, please try again",
				"reference": booking.Reference,
			})
		}
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"booking":     booking,
		"payment_url": booking.PaymentURL,
	})
}

func (h *Handler) GetAvailability(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidParam(c, "trip date id")
	}

	availability, err := h.Bookings.Availability(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(availability)
}

// HandlePaymentWebhook acknowledges everything except unverifiable payloads
// and failures the provider should retry.
func (h *Handler) HandlePaymentWebhook(c *fiber.Ctx) error {
	ev, err := h.Verifier.Verify(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn("Rejected payment webhook", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": services.ErrInvalidEvent.Error()})
	}

	if err := h.Payments.HandleEvent(c.UserContext(), ev); err != nil {
		if errors.Is(err, services.ErrInvalidEvent) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Could not process event"})
	}
	return c.JSON(fiber.Map{"received": true})
}
