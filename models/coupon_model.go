package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Coupon struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Code            string     `gorm:"size:50;not null;uniqueIndex" json:"code"`
	PercentOff      int        `gorm:"not null" json:"percent_off"`
	Description     string     `gorm:"size:255" json:"description"`
	Active          bool       `gorm:"not null" json:"active"`
	MaxParticipants *int       `json:"max_participants,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
