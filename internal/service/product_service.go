package service

import (
	"context"
	"fmt"
	"time"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductInput carries the writable product fields. Inventory is only
// honored at creation time as the initial stock; afterwards the ledger
// belongs to the order workflow.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Inventory   int
	Rating      *int
	CategoryIDs []uuid.UUID
}

// ProductService defines the interface for product business logic
type ProductService interface {
	Create(ctx context.Context, ownerID uuid.UUID, input ProductInput) (*domain.Product, error)
	Update(ctx context.Context, ownerID, productID uuid.UUID, input ProductInput) (*domain.Product, error)
	Delete(ctx context.Context, ownerID, productID uuid.UUID) error
	GetByID(ctx context.Context, productID uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
}

// NewProductService creates a new instance of ProductService
func NewProductService(productRepo repository.ProductRepository, categoryRepo repository.CategoryRepository) ProductService {
	return &productService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
	}
}

// Create adds a new product owned by the given user
func (s *productService) Create(ctx context.Context, ownerID uuid.UUID, input ProductInput) (*domain.Product, error) {
	if err := s.checkCategories(ctx, input.CategoryIDs); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.New(),
		UserID:      ownerID,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Inventory:   input.Inventory,
		Rating:      input.Rating,
		CategoryIDs: input.CategoryIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	return product, nil
}

// Update modifies a product the user owns. Products owned by other users are
// reported as not found. Inventory and total_sold are never written here.
func (s *productService) Update(ctx context.Context, ownerID, productID uuid.UUID, input ProductInput) (*domain.Product, error) {
	product, err := s.getOwned(ctx, ownerID, productID)
	if err != nil {
		return nil, err
	}

	if err := s.checkCategories(ctx, input.CategoryIDs); err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.Rating = input.Rating
	product.CategoryIDs = input.CategoryIDs
	product.UpdatedAt = time.Now()

	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	return product, nil
}

// Delete removes a product the user owns
func (s *productService) Delete(ctx context.Context, ownerID, productID uuid.UUID) error {
	if _, err := s.getOwned(ctx, ownerID, productID); err != nil {
		return err
	}
	return s.productRepo.Delete(ctx, productID)
}

// GetByID retrieves a product by ID
func (s *productService) GetByID(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, productID)
}

// List retrieves products with filtering, pagination and sorting
func (s *productService) List(ctx context.Context, categoryID *uuid.UUID, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	return s.productRepo.List(ctx, categoryID, page, pageSize, sortBy, sortOrder)
}

// Search searches products by name or description
func (s *productService) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	return s.productRepo.Search(ctx, query, page, pageSize)
}

func (s *productService) getOwned(ctx context.Context, ownerID, productID uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.UserID != ownerID {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func (s *productService) checkCategories(ctx context.Context, categoryIDs []uuid.UUID) error {
	for _, id := range categoryIDs {
		if _, err := s.categoryRepo.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
