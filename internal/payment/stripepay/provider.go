package stripepay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"eventsnow/internal/payment"
)

var ErrClientInitFailed = errors.New("failed to initialize Stripe client")

// Provider charges through Stripe Checkout Sessions, which give the organizer
// a hosted pay URL just like a YooKassa redirect confirmation.
type Provider struct {
	client        *client.API
	webhookSecret string
}

func New(secretKey, webhookSecret string) (*Provider, error) {
	if secretKey == "" {
		return nil, ErrClientInitFailed
	}
	return NewWithBackends(secretKey, webhookSecret, nil)
}

// NewWithBackends lets callers point the client at a different API host.
func NewWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) (*Provider, error) {
	sc := client.New(secretKey, backends)
	if sc == nil {
		return nil, ErrClientInitFailed
	}
	return &Provider{client: sc, webhookSecret: webhookSecret}, nil
}

func (p *Provider) Name() string { return "stripe" }

func (p *Provider) CreateCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("stripe: amount must be positive, got %d", req.Amount)
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "rub"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURL),
		CancelURL:         stripe.String(req.ReturnURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.OrderID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(req.OrderID, 10))
	params.AddMetadata("event_id", strconv.FormatInt(req.EventID, 10))
	params.AddMetadata("service", req.Service)

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return toCharge(sess)
}

func (p *Provider) GetCharge(ctx context.Context, id string) (*payment.Charge, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	sess, err := p.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: get checkout session %s: %w", id, err)
	}
	return toCharge(sess)
}

// minorUnits converts whole rubles to kopecks.
func minorUnits(amount int64) int64 {
	return decimal.NewFromInt(amount).Shift(2).IntPart()
}

func toCharge(sess *stripe.CheckoutSession) (*payment.Charge, error) {
	raw, err := rawPayload(sess)
	if err != nil {
		return nil, fmt.Errorf("stripe: decode checkout session %s: %w", sess.ID, err)
	}
	return &payment.Charge{
		ID:              sess.ID,
		Status:          sessionStatus(sess),
		ConfirmationURL: sess.URL,
		Raw:             raw,
	}, nil
}

// rawPayload → v re-read as a generic JSON object for storage on the order
func rawPayload(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// sessionStatus → charge status. A completed session still unpaid is waiting on
// an async method; once its payment intent falls back to requires_payment_method
// or is canceled, the async payment failed.
func sessionStatus(sess *stripe.CheckoutSession) payment.ChargeStatus {
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return payment.ChargeSucceeded
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return payment.ChargeCanceled
	case sess.Status == stripe.CheckoutSessionStatusComplete && asyncPaymentFailed(sess.PaymentIntent):
		return payment.ChargeCanceled
	default:
		return payment.ChargePending
	}
}

func asyncPaymentFailed(pi *stripe.PaymentIntent) bool {
	if pi == nil {
		return false
	}
	return pi.Status == stripe.PaymentIntentStatusRequiresPaymentMethod ||
		pi.Status == stripe.PaymentIntentStatusCanceled
}

// ParseWebhook verifies the Stripe signature and returns the checkout session
// id the event refers to. Events that carry no session return "".
func (p *Provider) ParseWebhook(payload []byte, signature string) (string, stripe.EventType, error) {
	if p.webhookSecret == "" {
		return "", "", &payment.WebhookError{
			Category:      payment.WebhookConfiguration,
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", "", &payment.WebhookError{
			Category:      payment.WebhookValidation,
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return "", event.Type, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", event.Type, &payment.WebhookError{
			Category:      payment.WebhookProcessing,
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid event data",
			InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
			OriginalErr:   err,
		}
	}
	return sess.ID, event.Type, nil
}
