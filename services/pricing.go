package services

import (
	"time"

	"github.com/anjiri1684/tour_booking/models"
)

type Quote struct {
	Gross     int64
	Discount  int64
	Total     int64
	Deposit   int64
	Remaining int64
}

// QuoteBooking prices a booking in minor units. The discount rounds down and
// the deposit rounds up, so deposit + remaining always equals total.
func QuoteBooking(trip *models.Trip, participants int, percentOff int) Quote {
	gross := trip.PricePerPerson * int64(participants)
	discount := gross * int64(percentOff) / 100
	total := gross - discount

	depositPercent := int64(trip.DepositPercent)
	if depositPercent <= 0 || depositPercent > 100 {
		depositPercent = 100
	}
	deposit := (total*depositPercent + 99) / 100
	if deposit > total {
		deposit = total
	}

	return Quote{
		Gross:     gross,
		Discount:  discount,
		Total:     total,
		Deposit:   deposit,
		Remaining: total - deposit,
	}
}

// RemainingDueDate is the departure date minus the trip's grace period, or nil
// when nothing remains to be paid.
func RemainingDueDate(trip *models.Trip, date time.Time, remaining int64) *time.Time {
	if remaining <= 0 {
		return nil
	}
	due := date.AddDate(0, 0, -trip.RemainingDueDays)
	return &due
}
