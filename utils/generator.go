package utils

import (
	"errors"
	"math/rand"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"gorm.io/gorm"
)

const bookingReferenceLength = 8
const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxReferenceAttempts = 20

// GenerateUniqueBookingReference returns a short code customers can quote on
// the phone. Ambiguous characters (0/O, 1/I) are left out of the alphabet.
func GenerateUniqueBookingReference(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		b := make([]byte, bookingReferenceLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := string(b)

		var booking models.Booking
		err := tx.Select("id").Where("reference = ?", code).First(&booking).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return code, nil
			}
			return "", err
		}
	}
	return "", errors.New("could not generate a unique booking reference")
}
