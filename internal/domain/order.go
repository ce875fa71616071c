package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// validTransitions maps each status to the set of statuses it may move to.
// paid -> paid is allowed so that redelivered payment confirmations are a no-op
// instead of an error; cancelled is terminal.
var validTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	return validTransitions[from][to]
}

// Order is a committed purchase request with a frozen set of line items.
type Order struct {
	ID                      uuid.UUID       `json:"id" db:"id"`
	UserID                  uuid.UUID       `json:"user_id" db:"user_id"`
	ShippingInfo            json.RawMessage `json:"shipping_info" db:"shipping_info"`
	BillingInfo             json.RawMessage `json:"billing_info,omitempty" db:"billing_info"`
	Status                  OrderStatus     `json:"status" db:"status"`
	StripeCheckoutSessionID *string         `json:"stripe_checkout_session_id,omitempty" db:"stripe_checkout_session_id"`
	Items                   []*OrderItem    `json:"items,omitempty" db:"-"`
	CreatedAt               time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at" db:"updated_at"`
}

// Total returns the sum of the line totals of all items.
func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// OrderItem is an immutable snapshot of one product's price and quantity within
// an order. UnitPrice is frozen at order-creation time and does not track later
// product price changes. ProductName is joined from products at read time.
type OrderItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrderID     uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name,omitempty" db:"-"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// LineTotal returns unit price times quantity.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
