package service

import (
	"context"
	"encoding/json"
	"fmt"

	"shopline/internal/domain"
	"shopline/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var minorUnitFactor = decimal.NewFromInt(100)

// PaymentService bridges the order workflow and the external payment
// provider: it creates checkout sessions for pending orders and reconciles
// order status when the provider calls back.
type PaymentService interface {
	CheckoutFromCarts(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (string, error)
	DirectCheckout(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Order, error)
}

type paymentService struct {
	orders   OrderService
	gateway  payment.Gateway
	currency string
}

// NewPaymentService creates a new instance of PaymentService
func NewPaymentService(orders OrderService, gateway payment.Gateway, currency string) PaymentService {
	return &paymentService{
		orders:   orders,
		gateway:  gateway,
		currency: currency,
	}
}

// CheckoutFromCarts places a pending order from the given carts and requests
// a checkout session for it. Carts are consumed at order creation, not at
// session creation: on a gateway failure the order stays pending with no
// session id and the client may retry checkout without re-submitting carts.
func (s *paymentService) CheckoutFromCarts(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (string, error) {
	order, err := s.orders.Create(ctx, userID, cartIDs, shipping, billing)
	if err != nil {
		return "", err
	}

	return s.createSession(ctx, order)
}

// DirectCheckout places a single-product pending order and requests a
// checkout session for it
func (s *paymentService) DirectCheckout(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (string, error) {
	order, err := s.orders.CreateDirect(ctx, userID, productID, quantity, shipping)
	if err != nil {
		return "", err
	}

	return s.createSession(ctx, order)
}

func (s *paymentService) createSession(ctx context.Context, order *domain.Order) (string, error) {
	items := make([]payment.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payment.LineItem{
			Name:       item.ProductName,
			Currency:   s.currency,
			UnitAmount: item.UnitPrice.Mul(minorUnitFactor).IntPart(),
			Quantity:   int64(item.Quantity),
		})
	}

	sessionID, err := s.gateway.CreateCheckoutSession(ctx, order.ID, items)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session for order %s: %w", order.ID, err)
	}

	if err := s.orders.AttachCheckoutSession(ctx, order.ID, sessionID); err != nil {
		return "", fmt.Errorf("failed to link checkout session to order %s: %w", order.ID, err)
	}

	return sessionID, nil
}

// HandleWebhook verifies a provider callback and applies it. A completed
// checkout marks the referenced order paid; redeliveries are no-ops. Event
// types this service does not care about return (nil, nil) so the handler
// can acknowledge them without action.
func (s *paymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Order, error) {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	if event.Type != payment.EventCheckoutCompleted {
		return nil, nil
	}

	orderID, err := uuid.Parse(event.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad order id %q", payment.ErrMalformedEvent, event.OrderID)
	}

	return s.orders.MarkPaid(ctx, orderID)
}
