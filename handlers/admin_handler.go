package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CancelTripDateRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

func (h *Handler) CancelTripDate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidParam(c, "trip date id")
	}

	var req CancelTripDateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	summary, err := h.Cancellations.CancelTripDate(c.UserContext(), id, req.Reason)
	if err != nil {
		if summary != nil {
			h.Logger.Error("Bookings cancelled but trip date not closed",
				zap.String("tripDateId", id.String()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Trip date could not be closed",
				"summary": summary,
			})
		}
		return h.fail(c, err)
	}
	return c.JSON(summary)
}

func (h *Handler) EvaluateThresholds(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidParam(c, "trip date id")
	}

	outcome, err := h.Thresholds.Evaluate(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(outcome)
}

func (h *Handler) CreateRemainingSession(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidParam(c, "booking id")
	}

	sess, err := h.Bookings.CreateRemainingSession(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id":  sess.ID,
		"payment_url": sess.URL,
	})
}

func (h *Handler) ListTripDateBookings(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidParam(c, "trip date id")
	}

	bookings, err := h.Bookings.ListBookings(c.UserContext(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"bookings": bookings, "count": len(bookings)})
}
