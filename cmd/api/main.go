package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anjiri1684/tour_booking/bootstrap"
	config "github.com/anjiri1684/tour_booking/configs"
	"github.com/anjiri1684/tour_booking/database"
	"github.com/anjiri1684/tour_booking/handlers"
	"github.com/anjiri1684/tour_booking/jobs"
	"github.com/anjiri1684/tour_booking/routes"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}

	a, err := bootstrap.New(cfg)
	if err != nil {
		log.Fatalf("🔥 Startup failed: %v", err)
	}

	// Close before exiting so the database and logger are flushed on failure too.
	err = serve(cfg, a)
	a.Close()
	if err != nil {
		log.Fatalf("🔥 %v", err)
	}
}

func serve(cfg config.Config, a *bootstrap.App) error {
	if err := database.Migrate(a.DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReminderCron, jobs.SendRemainingReminders(a.Reminders, a.Logger.Named("jobs"))); err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", cfg.ReminderCron, err)
	}
	c.Start()
	defer c.Stop()
	a.Logger.Info("✅ Cron job for balance reminders scheduled", zap.String("cron", cfg.ReminderCron))

	if srv, mux := a.ThresholdWorker(); srv != nil {
		go func() {
			if err := srv.Run(mux); err != nil {
				a.Logger.Error("Threshold worker stopped", zap.Error(err))
			}
		}()
		defer srv.Shutdown()
	}

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Tour Booking",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			a.Logger.Error("Request error",
				zap.Error(err), zap.String("path", c.Path()), zap.String("method", c.Method()))
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Stripe-Signature",
		AllowMethods: "GET, POST, OPTIONS",
		MaxAge:       86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	h := &handlers.Handler{
		Bookings:      a.Bookings,
		Payments:      a.Payments,
		Verifier:      a.Stripe,
		Cancellations: a.Cancellations,
		Thresholds:    a.Thresholds,
		Logger:        a.Logger.Named("http"),
	}
	routes.Setup(app, h, cfg.JWTSecret)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		a.Logger.Info("Shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.Logger.Error("Server shutdown", zap.Error(err))
		}
	}()

	a.Logger.Info("✅ Server is running", zap.String("port", cfg.AppPort))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}
