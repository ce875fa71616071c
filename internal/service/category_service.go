package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"shopline/internal/domain"
	"shopline/internal/repository"

	"github.com/google/uuid"
)

// CategoryService defines the interface for category business logic
type CategoryService interface {
	Create(ctx context.Context, name string) (*domain.Category, error)
	List(ctx context.Context) ([]*domain.Category, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
}

// NewCategoryService creates a new instance of CategoryService
func NewCategoryService(categoryRepo repository.CategoryRepository) CategoryService {
	return &categoryService{categoryRepo: categoryRepo}
}

// Create adds a new category. Names are lowercased and the slug is derived
// from the name.
func (s *categoryService) Create(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	now := time.Now()
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slugify(name),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	return category, nil
}

// List retrieves all categories
func (s *categoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.categoryRepo.List(ctx)
}

// GetByID retrieves a category by ID
func (s *categoryService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.categoryRepo.FindByID(ctx, id)
}

// slugify lowercases the name and replaces runs of non-alphanumeric
// characters with single hyphens
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
