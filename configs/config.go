package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppPort     string `envconfig:"APP_PORT" default:"8080"`
	Env         string `envconfig:"ENV" default:"development"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PublicBaseURL       string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:3000"`
	Currency            string `envconfig:"CURRENCY" default:"eur"`

	// Brevo transactional email
	BrevoAPIKey     string `envconfig:"BREVO_API_KEY"`
	EmailSender     string `envconfig:"EMAIL_SENDER"`
	EmailSenderName string `envconfig:"EMAIL_SENDER_NAME" default:"Tours"`
	AdminEmail      string `envconfig:"ADMIN_EMAIL"`

	// Threshold alerts run in-process unless a Redis-backed queue is requested.
	AlertQueue string `envconfig:"ALERT_QUEUE" default:"inprocess"`
	RedisAddr  string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	ReminderCron       string `envconfig:"REMINDER_CRON" default:"0 9 * * *"`
	ReminderWindowDays int    `envconfig:"REMINDER_WINDOW_DAYS" default:"7"`
}

// Load reads .env when present and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	var c Config
	err := envconfig.Process("", &c)
	return c, err
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
