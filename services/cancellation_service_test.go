package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestCancelTripDateRefundsEveryCapture(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)

	depositOnly := f.seedBooking(t, date, 2)
	fullyPaid := f.seedBooking(t, date, 1)
	unpaid := f.seedBooking(t, date, 3)

	f.payDeposit(t, depositOnly, "pi_a")
	f.payDeposit(t, fullyPaid, "pi_b")
	if err := f.processor.HandleEvent(context.Background(), settlementEvent(fullyPaid, models.PaymentTypeRemaining, "pi_b_rem")); err != nil {
		t.Fatalf("settle remaining: %v", err)
	}
	f.wait()

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Road closed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if summary.TotalBookings != 3 {
		t.Fatalf("total bookings = %d, want 3", summary.TotalBookings)
	}
	if summary.RefundsProcessed != 3 || summary.RefundsFailed != 0 {
		t.Fatalf("refunds processed/failed = %d/%d, want 3/0", summary.RefundsProcessed, summary.RefundsFailed)
	}
	if summary.EmailsSent > 3 || summary.EmailsSent+summary.EmailsFailed != 3 {
		t.Fatalf("emails sent/failed = %d/%d", summary.EmailsSent, summary.EmailsFailed)
	}
	wantTotal := depositOnly.DepositAmount + fullyPaid.DepositAmount + fullyPaid.RemainingAmount
	if summary.TotalRefundAmount != wantTotal {
		t.Fatalf("total refund = %d, want %d", summary.TotalRefundAmount, wantTotal)
	}

	d := f.tripDate(t, date)
	if d.ReservedSpots != 0 || d.Status != models.TripDateCancelled || d.CancelledAt == nil {
		t.Fatalf("trip date = %d spots, status %s", d.ReservedSpots, d.Status)
	}

	cases := []struct {
		booking      *models.Booking
		deposit      string
		remaining    string
		refundAmount int64
	}{
		{depositOnly, models.PaymentStatusRefunded, models.PaymentStatusCancelled, depositOnly.DepositAmount},
		{fullyPaid, models.PaymentStatusRefunded, models.PaymentStatusRefunded, fullyPaid.TotalPrice},
		{unpaid, models.PaymentStatusCancelled, models.PaymentStatusCancelled, 0},
	}
	for _, tc := range cases {
		got := f.booking(t, tc.booking.ID.String())
		if got.CancelledAt == nil || got.CancelReason == nil || *got.CancelReason != "Road closed" {
			t.Fatalf("booking %s not stamped as cancelled", got.Reference)
		}
		if got.DepositStatus != tc.deposit || got.RemainingStatus != tc.remaining {
			t.Fatalf("booking %s = %s/%s, want %s/%s", got.Reference,
				got.DepositStatus, got.RemainingStatus, tc.deposit, tc.remaining)
		}
		if got.RefundAmount != tc.refundAmount {
			t.Fatalf("booking %s refund = %d, want %d", got.Reference, got.RefundAmount, tc.refundAmount)
		}
		if got.CancellationEmailSentAt == nil || !got.LastEmailWas(models.EmailTypeCancellation) {
			t.Fatalf("booking %s has no cancellation email marker", got.Reference)
		}
	}

	for _, r := range summary.Bookings {
		if !strings.HasPrefix(r.FollowUpLink, "https://wa.me/393331234567?text=") {
			t.Fatalf("follow-up link = %q", r.FollowUpLink)
		}
	}
	f.assertLedger(t, date)
}

func TestCancelTripDateTwiceRefundsOnce(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)
	f.payDeposit(t, f.seedBooking(t, date, 2), "pi_once")
	f.wait()

	if _, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Storm"); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	refunds := f.gateway.refundCount()
	rows := f.countPayments(t)

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Storm")
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("second cancel error = %v, want ErrAlreadyCancelled", err)
	}
	if summary != nil {
		t.Fatalf("second cancel returned a summary: %+v", summary)
	}
	if f.gateway.refundCount() != refunds {
		t.Fatalf("refunds = %d, want %d", f.gateway.refundCount(), refunds)
	}
	if f.countPayments(t) != rows {
		t.Fatalf("payment rows = %d, want %d", f.countPayments(t), rows)
	}
}

func TestCancelTripDateIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)

	broken := f.seedBooking(t, date, 1)
	healthy := f.seedBooking(t, date, 1)
	f.payDeposit(t, broken, "pi_broken")
	f.payDeposit(t, healthy, "pi_healthy")
	f.wait()

	f.gateway.failRefunds["pi_broken"] = errProviderDown
	f.notifier.mu.Lock()
	f.notifier.fail[notifications.KindTripCancellation] = errProviderDown
	f.notifier.mu.Unlock()

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Guide ill")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if summary.RefundsProcessed != 1 || summary.RefundsFailed != 1 {
		t.Fatalf("refunds processed/failed = %d/%d, want 1/1", summary.RefundsProcessed, summary.RefundsFailed)
	}
	if summary.EmailsSent != 0 || summary.EmailsFailed != 2 {
		t.Fatalf("emails sent/failed = %d/%d, want 0/2", summary.EmailsSent, summary.EmailsFailed)
	}
	if summary.TotalRefundAmount != healthy.DepositAmount {
		t.Fatalf("total refund = %d, want %d", summary.TotalRefundAmount, healthy.DepositAmount)
	}

	var brokenResult *BookingCancellationResult
	for i := range summary.Bookings {
		if summary.Bookings[i].BookingID == broken.ID {
			brokenResult = &summary.Bookings[i]
		}
	}
	if brokenResult == nil || len(brokenResult.RefundErrors) != 1 || brokenResult.EmailError == "" {
		t.Fatalf("broken booking result = %+v", brokenResult)
	}

	// The failed refund is on the ledger for manual follow-up, and the booking
	// is closed without being marked refunded.
	got := f.booking(t, broken.ID.String())
	if got.CancelledAt == nil || got.DepositStatus != models.PaymentStatusCancelled || got.RefundAmount != 0 {
		t.Fatalf("broken booking = %+v", got)
	}
	failed := 0
	for _, p := range f.paymentRows(t, broken) {
		if p.Type == models.PaymentTypeRefund && p.Status == models.PaymentFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("failed refund rows = %d, want 1", failed)
	}

	if d := f.tripDate(t, date); d.Status != models.TripDateCancelled || d.ReservedSpots != 0 {
		t.Fatalf("trip date = %s with %d spots", d.Status, d.ReservedSpots)
	}
}

func TestCancelTripDateSkipsRefundedCaptures(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)
	b := f.seedBooking(t, date, 1)
	f.payDeposit(t, b, "pi_prior")
	f.wait()

	txn := "pi_prior"
	refundID := "re_manual"
	prior := &models.Payment{
		BookingID:        b.ID,
		Provider:         "fake",
		Type:             models.PaymentTypeRefund,
		Amount:           b.DepositAmount,
		Currency:         b.Currency,
		Status:           models.PaymentRefunded,
		ProviderRefundID: &refundID,
		RefundOf:         &txn,
		Metadata:         models.RefundMetadata("manual", ""),
	}
	if err := f.store.CreatePayment(context.Background(), prior); err != nil {
		t.Fatalf("seed refund: %v", err)
	}

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Low demand")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.gateway.refundCount() != 0 {
		t.Fatalf("provider refunds = %d, want 0", f.gateway.refundCount())
	}
	if summary.RefundsProcessed != 0 || summary.TotalRefundAmount != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	got := f.booking(t, b.ID.String())
	if got.RefundAmount != b.DepositAmount || got.DepositStatus != models.PaymentStatusRefunded {
		t.Fatalf("booking refund = %d, status %s", got.RefundAmount, got.DepositStatus)
	}
}

// afterFirstPaymentsQuery runs fn once, right after the first query that reads
// the payments table.
func (f *fixture) afterFirstPaymentsQuery(t *testing.T, fn func()) *bool {
	t.Helper()
	fired := false
	err := f.store.DB().Callback().Query().After("gorm:query").Register("test:after_payments_query", func(db *gorm.DB) {
		if fired || db.Statement.Table != "payments" {
			return
		}
		fired = true
		fn()
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	return &fired
}

func TestCancelTripDateRefundsDepositSettledMidway(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)
	b := f.seedBooking(t, date, 2)

	// The deposit settles after the captures were listed and before the
	// booking is stamped.
	fired := f.afterFirstPaymentsQuery(t, func() {
		if err := f.processor.HandleEvent(context.Background(), settlementEvent(b, models.PaymentTypeDeposit, "pi_midway")); err != nil {
			t.Errorf("settle deposit: %v", err)
		}
	})

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Avalanche risk")
	f.wait()
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !*fired {
		t.Fatal("settlement was not interleaved")
	}

	if summary.RefundsProcessed != 1 || summary.RefundsFailed != 0 || summary.TotalRefundAmount != b.DepositAmount {
		t.Fatalf("summary = %+v", summary)
	}
	if f.gateway.refundCount() != 1 {
		t.Fatalf("provider refunds = %d, want 1", f.gateway.refundCount())
	}

	got := f.booking(t, b.ID.String())
	if got.CancelledAt == nil || got.DepositStatus != models.PaymentStatusRefunded || got.RefundAmount != b.DepositAmount {
		t.Fatalf("booking = %s, refund %d, cancelled %v", got.DepositStatus, got.RefundAmount, got.CancelledAt)
	}
	refund, err := f.store.RefundFor(context.Background(), "pi_midway")
	if err != nil || refund == nil || refund.Amount != b.DepositAmount {
		t.Fatalf("refund row = %+v, %v", refund, err)
	}
	if d := f.tripDate(t, date); d.ReservedSpots != 0 {
		t.Fatalf("reserved spots = %d, want 0", d.ReservedSpots)
	}
}

func TestCancelTripDateSweepsBookingsCreatedDuringRun(t *testing.T) {
	f := newFixture(t)
	date := f.seedTripDate(t, 10, 0, 0)
	f.payDeposit(t, f.seedBooking(t, date, 1), "pi_early")
	f.wait()

	var late *models.Booking
	f.afterFirstPaymentsQuery(t, func() {
		late = f.seedBooking(t, date, 1)
	})

	summary, err := f.cancellations.CancelTripDate(context.Background(), date.ID, "Bridge closed")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if late == nil {
		t.Fatal("no booking was created during the run")
	}
	if summary.TotalBookings != 2 {
		t.Fatalf("total bookings = %d, want 2", summary.TotalBookings)
	}

	got := f.booking(t, late.ID.String())
	if got.CancelledAt == nil || got.DepositStatus != models.PaymentStatusCancelled || got.RemainingStatus != models.PaymentStatusCancelled {
		t.Fatalf("late booking = %s/%s, cancelled %v", got.DepositStatus, got.RemainingStatus, got.CancelledAt)
	}
}

func TestCancelTripDateNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.cancellations.CancelTripDate(context.Background(), uuid.New(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
