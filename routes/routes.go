package routes

import (
	"github.com/anjiri1684/tour_booking/handlers"
	"github.com/anjiri1684/tour_booking/middleware"
	"github.com/gofiber/fiber/v2"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	api.Post("/bookings", h.CreateBooking)
	api.Get("/trip-dates/:id/availability", h.GetAvailability)
}

func PaymentRoutes(app *fiber.App, h *handlers.Handler) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", h.HandlePaymentWebhook)
}

func AdminRoutes(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())

	dates := admin.Group("/trip-dates")
	dates.Post("/:id/cancel", h.CancelTripDate)
	dates.Post("/:id/thresholds", h.EvaluateThresholds)
	dates.Get("/:id/bookings", h.ListTripDateBookings)

	admin.Post("/bookings/:id/remaining-session", h.CreateRemainingSession)
}

func Setup(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	PublicRoutes(app, h)
	PaymentRoutes(app, h)
	AdminRoutes(app, h, jwtSecret)
}
