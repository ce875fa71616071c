package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shopline/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCartNotFound = errors.New("cart not found")
)

const cartColumns = "id, user_id, product_id, unit_price, quantity, created_at, updated_at"

// CartRepository defines the interface for cart entry data access
type CartRepository interface {
	Add(ctx context.Context, cart *domain.Cart) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Cart, error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) (*domain.Cart, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	CountByUser(ctx context.Context, userID uuid.UUID) (int, error)
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

// Add inserts a cart entry, merging quantities when the user already has one
// for the same product. The resulting row is scanned back into cart.
func (r *cartRepository) Add(ctx context.Context, cart *domain.Cart) error {
	query := fmt.Sprintf(`
		INSERT INTO cart_items (id, user_id, product_id, unit_price, quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    unit_price = EXCLUDED.unit_price,
		    updated_at = EXCLUDED.updated_at
		RETURNING %s
	`, cartColumns)

	err := r.db.QueryRowContext(
		ctx,
		query,
		cart.ID,
		cart.UserID,
		cart.ProductID,
		cart.UnitPrice,
		cart.Quantity,
		cart.CreatedAt,
		cart.UpdatedAt,
	).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.ProductID,
		&cart.UnitPrice,
		&cart.Quantity,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to add cart entry: %w", err)
	}

	return nil
}

// FindByID retrieves a cart entry by ID
func (r *cartRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Cart, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM cart_items
		WHERE id = $1
	`, cartColumns)

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.ProductID,
		&cart.UnitPrice,
		&cart.Quantity,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart by ID: %w", err)
	}

	return cart, nil
}

// ListByUser retrieves all cart entries owned by a user
func (r *cartRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Cart, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, cartColumns)

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart entries: %w", err)
	}
	defer rows.Close()

	carts := []*domain.Cart{}
	for rows.Next() {
		cart := &domain.Cart{}
		err := rows.Scan(
			&cart.ID,
			&cart.UserID,
			&cart.ProductID,
			&cart.UnitPrice,
			&cart.Quantity,
			&cart.CreatedAt,
			&cart.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart entry: %w", err)
		}
		carts = append(carts, cart)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart entries: %w", err)
	}

	return carts, nil
}

// UpdateQuantity sets the quantity of a cart entry and returns the updated row
func (r *cartRepository) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int) (*domain.Cart, error) {
	query := fmt.Sprintf(`
		UPDATE cart_items
		SET quantity = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, cartColumns)

	cart := &domain.Cart{}
	err := r.db.QueryRowContext(ctx, query, id, quantity).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.ProductID,
		&cart.UnitPrice,
		&cart.Quantity,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to update cart quantity: %w", err)
	}

	return cart, nil
}

// Delete removes a cart entry owned by the given user
func (r *cartRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	query := `DELETE FROM cart_items WHERE id = $1 AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCartNotFound
	}

	return nil
}

// CountByUser returns the number of cart entries a user has
func (r *cartRepository) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cart_items WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cart entries: %w", err)
	}
	return count, nil
}
