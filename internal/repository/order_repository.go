package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrCheckoutSessionTaken = errors.New("checkout session id already linked to another order")
)

// InsufficientInventoryError reports the first product that could not cover
// the requested quantity. The whole operation is aborted when it is returned.
type InsufficientInventoryError struct {
	ProductID   uuid.UUID
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for product %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// OrderRepository owns the transactional order workflow: creation consumes
// cart entries and decrements the inventory ledger, cancellation reverses it.
// Every mutation of products.inventory/total_sold in the codebase goes through
// this repository, under a row lock.
type OrderRepository interface {
	CreateFromCarts(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (*domain.Order, error)
	CreateDirect(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (*domain.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	SetCheckoutSessionID(ctx context.Context, id uuid.UUID, sessionID string) error
}

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new instance of OrderRepository
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// orderLine is one validated line of a pending order, captured while the
// product row lock is held.
type orderLine struct {
	cartID      *uuid.UUID
	productID   uuid.UUID
	productName string
	unitPrice   decimal.Decimal
	quantity    int
}

// CreateFromCarts converts the given cart entries into a pending order in one
// transaction: product rows are locked, every entry is validated against live
// inventory before any mutation, order items freeze the current product price,
// the ledger is decremented and the consumed carts are deleted. Either all
// effects land or none do.
func (r *orderRepository) CreateFromCarts(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (*domain.Order, error) {
	if len(cartIDs) == 0 {
		return nil, fmt.Errorf("no cart ids: %w", ErrCartNotFound)
	}

	// A cart entry can only be consumed once, so repeated ids collapse to one.
	seen := make(map[uuid.UUID]struct{}, len(cartIDs))
	uniqueIDs := make([]uuid.UUID, 0, len(cartIDs))
	for _, cartID := range cartIDs {
		if _, ok := seen[cartID]; ok {
			continue
		}
		seen[cartID] = struct{}{}
		uniqueIDs = append(uniqueIDs, cartID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Resolve every cart entry first. Entries owned by other users are
	// reported as not found.
	type cartRow struct {
		id        uuid.UUID
		productID uuid.UUID
		quantity  int
	}
	carts := make([]cartRow, 0, len(uniqueIDs))
	for _, cartID := range uniqueIDs {
		var c cartRow
		err := tx.QueryRowContext(ctx,
			`SELECT id, product_id, quantity FROM cart_items WHERE id = $1 AND user_id = $2`,
			cartID, userID).Scan(&c.id, &c.productID, &c.quantity)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, fmt.Errorf("cart %s: %w", cartID, ErrCartNotFound)
			}
			return nil, fmt.Errorf("failed to resolve cart %s: %w", cartID, err)
		}
		carts = append(carts, c)
	}

	// Lock product rows in a stable order so concurrent order creations
	// cannot deadlock on each other.
	sort.Slice(carts, func(i, j int) bool {
		return carts[i].productID.String() < carts[j].productID.String()
	})

	lines := make([]orderLine, 0, len(carts))
	for i := range carts {
		c := carts[i]
		line, err := lockAndValidateProduct(ctx, tx, c.productID, c.quantity)
		if err != nil {
			return nil, err
		}
		line.cartID = &c.id
		lines = append(lines, line)
	}

	order, err := r.commitOrder(ctx, tx, userID, shipping, billing, lines)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	return order, nil
}

// CreateDirect creates a pending order for a single product without touching
// any cart entry.
func (r *orderRepository) CreateDirect(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	line, err := lockAndValidateProduct(ctx, tx, productID, quantity)
	if err != nil {
		return nil, err
	}

	order, err := r.commitOrder(ctx, tx, userID, shipping, nil, []orderLine{line})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	return order, nil
}

// lockAndValidateProduct takes the row lock on a product and checks it can
// cover the requested quantity. The lock is held until the surrounding
// transaction ends, so the validated inventory cannot change underneath us.
func lockAndValidateProduct(ctx context.Context, tx *sql.Tx, productID uuid.UUID, quantity int) (orderLine, error) {
	var (
		name      string
		price     decimal.Decimal
		inventory int
	)
	err := tx.QueryRowContext(ctx,
		`SELECT name, price, inventory FROM products WHERE id = $1 FOR UPDATE`,
		productID).Scan(&name, &price, &inventory)
	if err != nil {
		if err == sql.ErrNoRows {
			return orderLine{}, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
		}
		return orderLine{}, fmt.Errorf("failed to lock product %s: %w", productID, err)
	}

	if quantity > inventory {
		return orderLine{}, &InsufficientInventoryError{
			ProductID:   productID,
			ProductName: name,
			Requested:   quantity,
			Available:   inventory,
		}
	}

	return orderLine{
		productID:   productID,
		productName: name,
		unitPrice:   price,
		quantity:    quantity,
	}, nil
}

// commitOrder writes the order, its items, the ledger mutations and the cart
// deletions inside the caller's transaction. All lines have been validated
// under their product row locks before this is called.
func (r *orderRepository) commitOrder(ctx context.Context, tx *sql.Tx, userID uuid.UUID, shipping, billing json.RawMessage, lines []orderLine) (*domain.Order, error) {
	now := time.Now()
	order := &domain.Order{
		ID:           uuid.New(),
		UserID:       userID,
		ShippingInfo: shipping,
		BillingInfo:  billing,
		Status:       domain.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, shipping_info, billing_info, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.ShippingInfo, order.BillingInfo, order.Status,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, line := range lines {
		item := &domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   line.productID,
			ProductName: line.productName,
			UnitPrice:   line.unitPrice,
			Quantity:    line.quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, unit_price, quantity, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, item.OrderID, item.ProductID, item.UnitPrice, item.Quantity,
			item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products SET inventory = inventory - $2, total_sold = total_sold + $2 WHERE id = $1`,
			line.productID, line.quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement inventory: %w", err)
		}

		if line.cartID != nil {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE id = $1`, *line.cartID); err != nil {
				return nil, fmt.Errorf("failed to consume cart %s: %w", *line.cartID, err)
			}
		}

		order.Items = append(order.Items, item)
	}

	return order, nil
}

// FindByID retrieves an order with its items
func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order := &domain.Order{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, shipping_info, billing_info, status, stripe_checkout_session_id, created_at, updated_at
		 FROM orders WHERE id = $1`, id).Scan(
		&order.ID,
		&order.UserID,
		&order.ShippingInfo,
		&order.BillingInfo,
		&order.Status,
		&order.StripeCheckoutSessionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order by ID: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// ListByUser retrieves all orders owned by a user, newest first, with items
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, shipping_info, billing_info, status, stripe_checkout_session_id, created_at, updated_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order := &domain.Order{}
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.ShippingInfo,
			&order.BillingInfo,
			&order.Status,
			&order.StripeCheckoutSessionID,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	for _, order := range orders {
		items, err := r.loadItems(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Items = items
	}

	return orders, nil
}

// Cancel transitions an order to cancelled and reverses the inventory ledger
// for each of its items, all in one transaction. A second cancel fails with
// ErrInvalidTransition, so the reversal cannot be applied twice.
func (r *orderRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.transition(ctx, id, domain.OrderStatusCancelled, func(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
		// Lock product rows in the same stable order creation uses, so a
		// concurrent create and cancel over the same products cannot deadlock.
		items := make([]*domain.OrderItem, len(order.Items))
		copy(items, order.Items)
		sort.Slice(items, func(i, j int) bool {
			return items[i].ProductID.String() < items[j].ProductID.String()
		})

		for _, item := range items {
			var inventory int
			err := tx.QueryRowContext(ctx,
				`SELECT inventory FROM products WHERE id = $1 FOR UPDATE`,
				item.ProductID).Scan(&inventory)
			if err != nil {
				return fmt.Errorf("failed to lock product %s: %w", item.ProductID, err)
			}

			_, err = tx.ExecContext(ctx,
				`UPDATE products SET inventory = inventory + $2, total_sold = total_sold - $2 WHERE id = $1`,
				item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("failed to reverse inventory: %w", err)
			}
		}
		return nil
	})
}

// MarkPaid transitions an order to paid. Marking an already-paid order is a
// no-op, so redelivered payment confirmations are harmless. The ledger is not
// touched: only creation and cancellation mutate it.
func (r *orderRepository) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.transition(ctx, id, domain.OrderStatusPaid, nil)
}

// transition moves an order to the target status under a row lock, applying
// the optional side effect inside the same transaction. Already being in the
// target status short-circuits as a no-op when the self-transition is allowed.
func (r *orderRepository) transition(ctx context.Context, id uuid.UUID, to domain.OrderStatus, effect func(context.Context, *sql.Tx, *domain.Order) error) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	order := &domain.Order{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, shipping_info, billing_info, status, stripe_checkout_session_id, created_at, updated_at
		 FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(
		&order.ID,
		&order.UserID,
		&order.ShippingInfo,
		&order.BillingInfo,
		&order.Status,
		&order.StripeCheckoutSessionID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	items, err := r.loadItemsTx(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	if !domain.CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", order.Status, to, ErrInvalidTransition)
	}

	if order.Status == to {
		// Allowed self-transition, nothing to do
		return order, nil
	}

	if effect != nil {
		if err := effect(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, order.ID, to)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = to

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order transition: %w", err)
	}

	return order, nil
}

// SetCheckoutSessionID links a payment-provider session to an order. The
// column is unique, so linking the same session to two orders fails.
func (r *orderRepository) SetCheckoutSessionID(ctx context.Context, id uuid.UUID, sessionID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET stripe_checkout_session_id = $2, updated_at = NOW() WHERE id = $1`,
		id, sessionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCheckoutSessionTaken
		}
		return fmt.Errorf("failed to set checkout session id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, orderItemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return scanOrderItems(rows)
}

func (r *orderRepository) loadItemsTx(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) ([]*domain.OrderItem, error) {
	rows, err := tx.QueryContext(ctx, orderItemsQuery, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return scanOrderItems(rows)
}

const orderItemsQuery = `
	SELECT i.id, i.order_id, i.product_id, p.name, i.unit_price, i.quantity, i.created_at, i.updated_at
	FROM order_items i
	JOIN products p ON p.id = i.product_id
	WHERE i.order_id = $1
	ORDER BY i.created_at ASC, i.id ASC
`

func scanOrderItems(rows *sql.Rows) ([]*domain.OrderItem, error) {
	defer rows.Close()

	items := []*domain.OrderItem{}
	for rows.Next() {
		item := &domain.OrderItem{}
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.UnitPrice,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return items, nil
}
