package database

import (
	"fmt"

	"github.com/anjiri1684/tour_booking/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. The partial unique index is what makes a second
// successful refund of the same provider transaction impossible, whatever the
// application does.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Trip{},
		&models.TripDate{},
		&models.Booking{},
		&models.Payment{},
		&models.Coupon{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_refund_of ON payments (refund_of) WHERE type = 'refund' AND status = 'refunded'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_capture ON payments (booking_id, type, provider_txn_id) WHERE status = 'succeeded'`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
