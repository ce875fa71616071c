package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopline/internal/config"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	webhookSecret string
	successURL    string
	timeout       time.Duration
}

// NewStripeGateway configures the Stripe client and returns a gateway
func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	stripe.Key = cfg.SecretKey

	return &StripeGateway{
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		timeout:       cfg.Timeout,
	}
}

// CreateCheckoutSession requests a payment-mode checkout session for the
// given line items, tagged with the order id so the webhook can find the
// order later. The outbound call is bounded by the configured timeout.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, orderID uuid.UUID, items []LineItem) (string, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(item.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
				UnitAmount: stripe.Int64(item.UnitAmount),
			},
			Quantity: stripe.Int64(item.Quantity),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(g.successURL),
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID.String())

	s, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGateway, err)
	}

	return s.ID, nil
}

// VerifyWebhook checks the payload signature against the webhook secret and
// decodes the event. Checkout-completion events carry the order id from the
// session metadata; other event types are passed through with an empty order
// id so the caller can acknowledge them without action.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if string(event.Type) != EventCheckoutCompleted {
		return Event{Type: string(event.Type)}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return Event{
		Type:    string(event.Type),
		OrderID: sess.Metadata["order_id"],
	}, nil
}
