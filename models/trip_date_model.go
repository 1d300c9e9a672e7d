package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TripDateOpen      = "OPEN"
	TripDateSoldOut   = "SOLD_OUT"
	TripDateCancelled = "CANCELLED"
)

// TripDate is one scheduled departure. Its counters form the capacity ledger:
// reserved_spots only ever moves through conditional SQL updates, and the two
// *_reached_at columns are set-once flags guarding threshold alerts.
type TripDate struct {
	ID              uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	TripID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"trip_id"`
	Date            time.Time  `gorm:"not null" json:"date"`
	Capacity        int        `gorm:"not null" json:"capacity"`
	ReservedSpots   int        `gorm:"not null" json:"reserved_spots"`
	MinParticipants int        `gorm:"not null" json:"min_participants"`
	MinReachedAt    *time.Time `json:"min_reached_at,omitempty"`
	MaxReachedAt    *time.Time `json:"max_reached_at,omitempty"`
	Status          string     `gorm:"size:20;not null;index" json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	Trip *Trip `gorm:"foreignkey:TripID" json:"trip,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *TripDate) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = TripDateOpen
	}
	return nil
}

// AvailableSpots never reports a negative number, even for a ledger that was
// overbooked by hand.
func (d *TripDate) AvailableSpots() int {
	left := d.Capacity - d.ReservedSpots
	if left < 0 {
		return 0
	}
	return left
}

func (d *TripDate) IsBookable() bool {
	return d.CancelledAt == nil && d.Status == TripDateOpen
}
