package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/tour_booking/database"
	"github.com/anjiri1684/tour_booking/models"
	"github.com/anjiri1684/tour_booking/notifications"
	"github.com/anjiri1684/tour_booking/payments"
	"github.com/anjiri1684/tour_booking/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeGateway struct {
	mu          sync.Mutex
	sessions    []payments.SessionRequest
	refunds     []payments.RefundRequest
	failRefunds map[string]error
	failSession error
	// onRefund runs before a refund is answered, outside the lock.
	onRefund func(req payments.RefundRequest)
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePaymentSession(ctx context.Context, req payments.SessionRequest) (*payments.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSession != nil {
		return nil, g.failSession
	}
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_test_%d", len(g.sessions))
	return &payments.Session{ID: id, URL: "https://pay.example.test/" + id}, nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, req payments.RefundRequest) (*payments.Refund, error) {
	if g.onRefund != nil {
		g.onRefund(req)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failRefunds[req.TransactionID]; err != nil {
		return nil, err
	}
	g.refunds = append(g.refunds, req)
	return &payments.Refund{ID: "re_" + req.TransactionID}, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type sentNotice struct {
	kind notifications.Kind
	msg  notifications.Message
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	fail map[notifications.Kind]error
}

func (n *fakeNotifier) Send(ctx context.Context, kind notifications.Kind, msg notifications.Message) notifications.Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[kind]; err != nil {
		return notifications.Failed(err)
	}
	n.sent = append(n.sent, sentNotice{kind: kind, msg: msg})
	return notifications.Result{Success: true, MessageID: fmt.Sprintf("msg-%d", len(n.sent))}
}

func (n *fakeNotifier) count(kind notifications.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.kind == kind {
			c++
		}
	}
	return c
}

type fixture struct {
	store         *repository.Store
	gateway       *fakeGateway
	notifier      *fakeNotifier
	thresholds    *ThresholdDispatcher
	alerts        *InProcessAlertQueue
	bookings      *BookingService
	processor     *PaymentProcessor
	cancellations *CancellationService
	reminders     *ReminderService
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the in-memory database shared and serializes
	// transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.New(db)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := zap.NewNop()
	f := &fixture{
		store:    newTestStore(t),
		gateway:  &fakeGateway{failRefunds: map[string]error{}},
		notifier: &fakeNotifier{fail: map[notifications.Kind]error{}},
	}
	f.thresholds = NewThresholdDispatcher(f.store, f.notifier, "ops@example.test", log)
	f.alerts = NewInProcessAlertQueue(f.thresholds, log)
	f.bookings = NewBookingService(f.store, f.gateway, NewCouponService(f.store), log)
	f.processor = NewPaymentProcessor(f.store, f.gateway, f.notifier, f.alerts, log)
	f.cancellations = NewCancellationService(f.store, f.gateway, f.notifier, log)
	f.reminders = NewReminderService(f.store, f.bookings, f.notifier, 7, log)
	return f
}

// wait lets post-commit work finish before assertions.
func (f *fixture) wait() {
	f.processor.Wait()
	f.alerts.Wait()
}

func (f *fixture) seedTripDate(t *testing.T, capacity, minParticipants, reserved int) *models.TripDate {
	t.Helper()
	ctx := context.Background()

	trip := &models.Trip{
		Title:            "Dolomites Hut Trek",
		PricePerPerson:   100000,
		DepositPercent:   30,
		Currency:         "eur",
		RemainingDueDays: 30,
	}
	if err := f.store.CreateTrip(ctx, trip); err != nil {
		t.Fatalf("create trip: %v", err)
	}

	date := &models.TripDate{
		TripID:          trip.ID,
		Date:            time.Now().UTC().AddDate(0, 2, 0).Truncate(24 * time.Hour),
		Capacity:        capacity,
		MinParticipants: minParticipants,
		ReservedSpots:   reserved,
	}
	if err := f.store.CreateTripDate(ctx, date); err != nil {
		t.Fatalf("create trip date: %v", err)
	}
	date.Trip = trip
	return date
}

var bookingSeq int

func (f *fixture) seedBooking(t *testing.T, date *models.TripDate, participants int) *models.Booking {
	t.Helper()
	bookingSeq++

	quote := QuoteBooking(date.Trip, participants, 0)
	b := &models.Booking{
		Reference:         fmt.Sprintf("REF%05d", bookingSeq),
		TripDateID:        date.ID,
		CustomerName:      fmt.Sprintf("Customer %d", bookingSeq),
		CustomerEmail:     fmt.Sprintf("customer%d@example.test", bookingSeq),
		CustomerPhone:     "+39 333 123 4567",
		ParticipantsCount: participants,
		TotalPrice:        quote.Total,
		DepositAmount:     quote.Deposit,
		RemainingAmount:   quote.Remaining,
		Currency:          date.Trip.Currency,
		RemainingDueDate:  RemainingDueDate(date.Trip, date.Date, quote.Remaining),
	}
	if err := f.store.CreateBooking(context.Background(), b); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return b
}

func settlementEvent(b *models.Booking, paymentType, txn string) *payments.Event {
	amount := b.DepositAmount
	if paymentType == models.PaymentTypeRemaining {
		amount = b.RemainingAmount
	}
	return &payments.Event{
		ID:            "evt_" + txn,
		Type:          payments.EventSettlement,
		BookingID:     b.ID,
		PaymentType:   paymentType,
		Amount:        amount,
		Currency:      b.Currency,
		TransactionID: txn,
		SessionID:     "cs_" + txn,
	}
}

func expiryEvent(b *models.Booking, paymentType, session string) *payments.Event {
	return &payments.Event{
		ID:          "evt_exp_" + session,
		Type:        payments.EventExpiry,
		BookingID:   b.ID,
		PaymentType: paymentType,
		SessionID:   session,
	}
}

// payDeposit settles a booking's deposit and fails the test if it did not
// take the seats.
func (f *fixture) payDeposit(t *testing.T, b *models.Booking, txn string) {
	t.Helper()
	if err := f.processor.HandleEvent(context.Background(), settlementEvent(b, models.PaymentTypeDeposit, txn)); err != nil {
		t.Fatalf("settle deposit: %v", err)
	}
	got := f.booking(t, b.ID.String())
	if got.DepositStatus != models.PaymentStatusPaid {
		t.Fatalf("deposit status = %s, want PAID", got.DepositStatus)
	}
}

func (f *fixture) booking(t *testing.T, id string) *models.Booking {
	t.Helper()
	var b models.Booking
	if err := f.store.DB().First(&b, "id = ?", id).Error; err != nil {
		t.Fatalf("load booking: %v", err)
	}
	return &b
}

func (f *fixture) tripDate(t *testing.T, date *models.TripDate) *models.TripDate {
	t.Helper()
	d, err := f.store.GetTripDate(context.Background(), date.ID)
	if err != nil {
		t.Fatalf("load trip date: %v", err)
	}
	return d
}

func (f *fixture) paymentRows(t *testing.T, b *models.Booking) []models.Payment {
	t.Helper()
	rows, err := f.store.ListPayments(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	return rows
}

func (f *fixture) countPayments(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.store.DB().Model(&models.Payment{}).Count(&n).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	return n
}

// assertLedger checks that reserved spots equal the seats of paid, active
// bookings.
func (f *fixture) assertLedger(t *testing.T, date *models.TripDate) {
	t.Helper()
	confirmed, err := f.store.ConfirmedParticipants(context.Background(), date.ID)
	if err != nil {
		t.Fatalf("confirmed participants: %v", err)
	}
	d := f.tripDate(t, date)
	if d.ReservedSpots != confirmed {
		t.Fatalf("reserved spots = %d, confirmed participants = %d", d.ReservedSpots, confirmed)
	}
}

var errProviderDown = errors.New("provider unavailable")
