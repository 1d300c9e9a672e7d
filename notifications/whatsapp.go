package notifications

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/anjiri1684/tour_booking/models"
)

// FollowUpLink prepares a click-to-chat link an admin can open to contact the
// customer by hand. It returns "" when the booking has no usable phone number.
func FollowUpLink(b *models.Booking, date string) string {
	var digits strings.Builder
	for _, r := range b.CustomerPhone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 7 {
		return ""
	}

	text := fmt.Sprintf("Hi %s, this is about your booking %s for the departure on %s, which has been cancelled. We would like to help you rebook or answer any questions.",
		b.CustomerName, b.Reference, date)
	// wa.me shows a literal "+" for query-encoded spaces.
	escaped := strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
	return "https://wa.me/" + digits.String() + "?text=" + escaped
}
