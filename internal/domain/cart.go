package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart is a user's pending selection of one product. UnitPrice is snapshotted
// from the product price when the entry is written and never re-derived on read.
// A user has at most one entry per product; repeat adds merge quantities.
type Cart struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Quantity  int             `json:"quantity" db:"quantity"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Total returns unit price times quantity.
func (c *Cart) Total() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}
