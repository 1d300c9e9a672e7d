package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anjiri1684/tour_booking/models"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const ProviderStripe = "stripe"

const (
	metadataBookingID   = "bookingId"
	metadataPaymentType = "paymentType"
	metadataReference   = "reference"
)

// StripeService opens Checkout sessions, issues refunds and verifies webhook
// signatures.
type StripeService struct {
	api           *client.API
	webhookSecret string
	baseURL       string
}

func NewStripeService(secretKey, webhookSecret, publicBaseURL string) *StripeService {
	return &StripeService{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		baseURL:       strings.TrimRight(publicBaseURL, "/"),
	}
}

func (s *StripeService) Name() string { return ProviderStripe }

func (s *StripeService) CreatePaymentSession(ctx context.Context, req SessionRequest) (*Session, error) {
	bookingID := req.BookingID.String()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(req.CustomerEmail),
		ClientReferenceID: stripe.String(bookingID),
		SuccessURL:        stripe.String(fmt.Sprintf("%s/booking/%s/success?type=%s", s.baseURL, req.Reference, req.PaymentType)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/booking/%s/cancelled?type=%s", s.baseURL, req.Reference, req.PaymentType)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				metadataBookingID:   bookingID,
				metadataPaymentType: req.PaymentType,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataBookingID, bookingID)
	params.AddMetadata(metadataPaymentType, req.PaymentType)
	params.AddMetadata(metadataReference, req.Reference)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// CreateRefund is keyed on the original transaction, so Stripe itself refuses
// to refund the same payment intent twice through this path.
func (s *StripeService) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.TransactionID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + req.TransactionID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	return &Refund{ID: r.ID}, nil
}

func (s *StripeService) Verify(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnverifiedEvent, err)
	}
	return decodeStripeEvent(ev)
}

func decodeStripeEvent(ev stripe.Event) (*Event, error) {
	var eventType EventType
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		eventType = EventSettlement
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		eventType = EventExpiry
	default:
		return &Event{ID: ev.ID, Ignored: true}, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", ErrUnverifiedEvent, err)
	}

	// A completed session paid by a delayed method settles later through
	// async_payment_succeeded.
	if ev.Type == "checkout.session.completed" && cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return &Event{ID: ev.ID, Ignored: true}, nil
	}

	bookingID, err := uuid.Parse(cs.Metadata[metadataBookingID])
	if err != nil {
		return nil, fmt.Errorf("%w: missing or malformed bookingId metadata", ErrUnverifiedEvent)
	}

	paymentType := cs.Metadata[metadataPaymentType]
	if paymentType == "" {
		paymentType = models.PaymentTypeDeposit
	}
	if paymentType != models.PaymentTypeDeposit && paymentType != models.PaymentTypeRemaining {
		return nil, fmt.Errorf("%w: unknown paymentType %q", ErrUnverifiedEvent, paymentType)
	}

	out := &Event{
		ID:          ev.ID,
		Type:        eventType,
		BookingID:   bookingID,
		PaymentType: paymentType,
		Amount:      cs.AmountTotal,
		Currency:    string(cs.Currency),
		SessionID:   cs.ID,
	}
	if cs.PaymentIntent != nil {
		out.TransactionID = cs.PaymentIntent.ID
	}
	if eventType == EventSettlement && out.TransactionID == "" {
		return nil, fmt.Errorf("%w: settlement without payment intent", ErrUnverifiedEvent)
	}
	return out, nil
}
