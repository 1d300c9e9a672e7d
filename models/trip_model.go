package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Trip struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Title            string    `gorm:"size:255;not null" json:"title"`
	PricePerPerson   int64     `gorm:"not null" json:"price_per_person"`
	DepositPercent   int       `gorm:"not null" json:"deposit_percent"`
	Currency         string    `gorm:"size:3;not null" json:"currency"`
	RemainingDueDays int       `gorm:"not null" json:"remaining_due_days"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Trip) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
