package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
)

var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

// OrderService is the order workflow engine: it converts cart entries into
// orders, exposes owned orders, and drives the status lifecycle. The
// inventory bookkeeping itself lives in the repository transaction.
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (*domain.Order, error)
	CreateDirect(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (*domain.Order, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	List(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error
}

type orderService struct {
	orderRepo repository.OrderRepository
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(orderRepo repository.OrderRepository) OrderService {
	return &orderService{orderRepo: orderRepo}
}

// Create places an order from the user's cart entries. Validation and the
// ledger mutation are a single atomic unit: on any failure no cart is
// consumed and no inventory changes.
func (s *orderService) Create(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (*domain.Order, error) {
	order, err := s.orderRepo.CreateFromCarts(ctx, userID, cartIDs, shipping, billing)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// CreateDirect places a single-product order without consuming any cart
func (s *orderService) CreateDirect(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	order, err := s.orderRepo.CreateDirect(ctx, userID, productID, quantity, shipping)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return order, nil
}

// Get retrieves an order owned by the user. Orders belonging to other users
// are reported as not found.
func (s *orderService) Get(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// List retrieves all orders owned by the user
func (s *orderService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	orders, err := s.orderRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// Cancel cancels an order owned by the user and reverses the inventory
// ledger. Cancelling twice fails with ErrInvalidTransition.
func (s *orderService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.orderRepo.Cancel(ctx, orderID)
}

// MarkPaid transitions an order to paid. Invoked only by the payment
// confirmation path; already-paid orders are a no-op.
func (s *orderService) MarkPaid(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.orderRepo.MarkPaid(ctx, orderID)
}

// AttachCheckoutSession links a payment session to an order
func (s *orderService) AttachCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	return s.orderRepo.SetCheckoutSessionID(ctx, orderID, sessionID)
}
