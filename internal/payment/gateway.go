package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrGateway means the payment provider was unreachable or rejected the
	// request. The order stays pending and unlinked so checkout can be retried.
	ErrGateway = errors.New("payment gateway request failed")

	// ErrInvalidSignature means a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedEvent means a verified webhook payload could not be decoded.
	ErrMalformedEvent = errors.New("malformed webhook event")
)

// EventCheckoutCompleted is the provider event delivered after a checkout
// session has been paid.
const EventCheckoutCompleted = "checkout.session.completed"

// LineItem is one line of a checkout session request. UnitAmount is in minor
// currency units (centavos for PHP).
type LineItem struct {
	Name       string
	Currency   string
	UnitAmount int64
	Quantity   int64
}

// Event is a verified provider callback. OrderID is only set for event types
// that carry order metadata.
type Event struct {
	Type    string
	OrderID string
}

// Gateway abstracts the external payment provider: it turns order line items
// into a checkout session and verifies asynchronous webhook deliveries.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, orderID uuid.UUID, items []LineItem) (string, error)
	VerifyWebhook(payload []byte, signature string) (Event, error)
}
