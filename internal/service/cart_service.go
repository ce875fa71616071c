package service

import (
	"context"
	"fmt"
	"time"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
)

// CartService manages a user's pending selections. The unit price is
// snapshotted from the product at write time; adding a product already in the
// cart merges quantities.
type CartService interface {
	Add(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Cart, error)
	Get(ctx context.Context, userID, cartID uuid.UUID) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID, cartID uuid.UUID, quantity int) (*domain.Cart, error)
	Delete(ctx context.Context, userID, cartID uuid.UUID) error
	Count(ctx context.Context, userID uuid.UUID) (int, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
}

// NewCartService creates a new instance of CartService
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// Add puts a product into the user's cart, snapshotting the current product
// price. A repeat add for the same product merges into the existing entry.
func (s *cartService) Add(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	cart := &domain.Cart{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: product.ID,
		UnitPrice: product.Price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.cartRepo.Add(ctx, cart); err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}

	return cart, nil
}

// List retrieves the user's cart entries
func (s *cartService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Cart, error) {
	return s.cartRepo.ListByUser(ctx, userID)
}

// Get retrieves one cart entry owned by the user. Entries belonging to other
// users are reported as not found.
func (s *cartService) Get(ctx context.Context, userID, cartID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.cartRepo.FindByID(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.UserID != userID {
		return nil, repository.ErrCartNotFound
	}
	return cart, nil
}

// UpdateQuantity sets the quantity of an owned cart entry. Quantity is the
// only mutable field of a cart entry.
func (s *cartService) UpdateQuantity(ctx context.Context, userID, cartID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	if _, err := s.Get(ctx, userID, cartID); err != nil {
		return nil, err
	}

	return s.cartRepo.UpdateQuantity(ctx, cartID, quantity)
}

// Delete removes an owned cart entry
func (s *cartService) Delete(ctx context.Context, userID, cartID uuid.UUID) error {
	return s.cartRepo.Delete(ctx, cartID, userID)
}

// Count returns the number of entries in the user's cart
func (s *cartService) Count(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.cartRepo.CountByUser(ctx, userID)
}
