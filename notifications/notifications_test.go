package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/anjiri1684/tour_booking/models"
	"go.uber.org/zap"
)

func testBooking() *models.Booking {
	due := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return &models.Booking{
		Reference:         "K7QX2M9P",
		CustomerName:      "Lena Vogel",
		CustomerEmail:     "lena@example.test",
		CustomerPhone:     "+49 (151) 2345-6789",
		ParticipantsCount: 2,
		DepositAmount:     60000,
		RemainingAmount:   140000,
		Currency:          "eur",
		RemainingDueDate:  &due,
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		minor    int64
		currency string
		want     string
	}{
		{30000, "eur", "300.00 EUR"},
		{5, "usd", "0.05 USD"},
		{123456, "chf", "1234.56 CHF"},
	}
	for _, tt := range tests {
		if got := FormatAmount(tt.minor, tt.currency); got != tt.want {
			t.Errorf("FormatAmount(%d, %s) = %q, want %q", tt.minor, tt.currency, got, tt.want)
		}
	}
}

func TestRenderEveryKind(t *testing.T) {
	date := &models.TripDate{Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	msg := Message{
		ToName:       "Lena <script>",
		Booking:      testBooking(),
		TripDate:     date,
		PaymentURL:   "https://pay.example.test/cs_1",
		Reason:       "Storm warning",
		RefundAmount: 60000,
		Confirmed:    7,
	}

	checks := map[Kind][]string{
		KindBookingConfirmation: {"K7QX2M9P", "600.00 EUR", "1400.00 EUR", "2026-05-01"},
		KindRemainingReminder:   {"https://pay.example.test/cs_1", "1400.00 EUR"},
		KindTripCancellation:    {"Storm warning", "A refund of 600.00 EUR", "2026-06-01"},
		KindCapacityExceeded:    {"K7QX2M9P", "has been refunded"},
		KindAdminMinReached:     {"7 confirmed", "2026-06-01"},
		KindAdminSoldOut:        {"7 confirmed", "sold out"},
	}
	for kind, wants := range checks {
		subject, body, err := Render(kind, msg)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		text := subject + body
		for _, w := range wants {
			if !strings.Contains(text, w) {
				t.Errorf("%s: %q not found in %q", kind, w, text)
			}
		}
		if strings.Contains(body, "<script>") {
			t.Errorf("%s: recipient name not escaped", kind)
		}
	}

	if _, _, err := Render(KindBookingConfirmation, Message{}); err == nil {
		t.Fatal("customer notice without booking rendered")
	}
	if _, _, err := Render(Kind("unknown"), msg); err == nil {
		t.Fatal("unknown kind rendered")
	}
}

func TestFollowUpLink(t *testing.T) {
	b := testBooking()
	link := FollowUpLink(b, "2026-06-01")

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "wa.me" || u.Path != "/4915123456789" {
		t.Fatalf("link = %s", link)
	}
	if text := u.Query().Get("text"); !strings.Contains(text, "K7QX2M9P") || !strings.Contains(text, "2026-06-01") {
		t.Fatalf("text = %q", text)
	}
	if strings.Contains(u.RawQuery, "+") || !strings.Contains(u.RawQuery, "Hi%20Lena%20Vogel") {
		t.Fatalf("spaces not percent-encoded: %s", u.RawQuery)
	}

	b.CustomerPhone = "12-34"
	if got := FollowUpLink(b, "2026-06-01"); got != "" {
		t.Fatalf("short phone link = %q, want empty", got)
	}
}

func TestBrevoServiceSend(t *testing.T) {
	var received brevoPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"messageId":"<202601010000.123@smtp-relay.example>"}`))
	}))
	defer srv.Close()

	n := NewBrevoService("key-1", "trips@example.test", "Trips", zap.NewNop())
	svc, ok := n.(*BrevoService)
	if !ok {
		t.Fatalf("NewBrevoService returned %T", n)
	}
	svc.Endpoint = srv.URL

	b := testBooking()
	res := svc.Send(context.Background(), KindBookingConfirmation, Message{ToEmail: b.CustomerEmail, ToName: b.CustomerName, Booking: b})
	if !res.Success || res.MessageID != "<202601010000.123@smtp-relay.example>" {
		t.Fatalf("result = %+v", res)
	}
	if len(received.To) != 1 || received.To[0]["email"] != "lena@example.test" {
		t.Fatalf("recipient = %+v", received.To)
	}
	if len(received.Tags) != 1 || received.Tags[0] != string(KindBookingConfirmation) {
		t.Fatalf("tags = %v", received.Tags)
	}

	svc.APIKey = "wrong"
	if res := svc.Send(context.Background(), KindBookingConfirmation, Message{ToEmail: b.CustomerEmail, Booking: b}); res.Success || res.Err == nil {
		t.Fatalf("rejected send reported %+v", res)
	}
	if res := svc.Send(context.Background(), KindBookingConfirmation, Message{ToEmail: "not-an-email", Booking: b}); res.Success {
		t.Fatal("invalid recipient sent")
	}
}

func TestBrevoServiceNotConfigured(t *testing.T) {
	n := NewBrevoService("", "", "", zap.NewNop())
	res := n.Send(context.Background(), KindAdminSoldOut, Message{ToEmail: "ops@example.test"})
	if res.Success || !errors.Is(res.Err, ErrNotConfigured) {
		t.Fatalf("result = %+v, want ErrNotConfigured", res)
	}
}
