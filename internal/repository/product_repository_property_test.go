package repository

import (
	"context"
	"testing"
	"time"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// createTestUser inserts a user row to own products and carts in tests
func createTestUser(t *testing.T) *domain.User {
	t.Helper()

	id := uuid.New()
	user := &domain.User{
		ID:           id,
		Email:        id.String() + "@test.local",
		Username:     "user_" + id.String()[:8],
		PasswordHash: "not-a-real-hash",
		FirstName:    "Test",
		LastName:     "User",
		Role:         "user",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := NewUserRepository(testDB).Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

// createTestCategory inserts a category row for linking products in tests
func createTestCategory(t *testing.T) *domain.Category {
	t.Helper()

	id := uuid.New()
	category := &domain.Category{
		ID:        id,
		Name:      "category " + id.String()[:8],
		Slug:      "category-" + id.String()[:8],
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := NewCategoryRepository(testDB).Create(context.Background(), category); err != nil {
		t.Fatalf("Failed to create test category: %v", err)
	}
	return category
}

// Feature: ordering-platform, Property 10: Product creation preserves attributes
// Validates: Requirements 4.1
func TestProperty_ProductCreationPreservesAttributes(t *testing.T) {
	productRepo := NewProductRepository(testDB)
	owner := createTestUser(t)
	category := createTestCategory(t)

	properties := gopter.NewProperties(nil)

	properties.Property("creating and retrieving a product preserves all attributes", prop.ForAll(
		func(name string, description string, priceCents int64, inventory int) bool {
			ctx := context.Background()
			price := decimal.NewFromInt(priceCents).Div(decimal.NewFromInt(100))

			product := &domain.Product{
				ID:          uuid.New(),
				UserID:      owner.ID,
				Name:        name,
				Description: description,
				Price:       price,
				Inventory:   inventory,
				CategoryIDs: []uuid.UUID{category.ID},
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}

			err := productRepo.Create(ctx, product)
			if err != nil {
				t.Logf("FAIL: Failed to create product: %v", err)
				return false
			}

			retrieved, err := productRepo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: Failed to retrieve product: %v", err)
				return false
			}

			if retrieved.ID != product.ID {
				t.Logf("FAIL: ID mismatch. Expected %s, got %s", product.ID, retrieved.ID)
				return false
			}

			if retrieved.UserID != owner.ID {
				t.Logf("FAIL: Owner mismatch. Expected %s, got %s", owner.ID, retrieved.UserID)
				return false
			}

			if retrieved.Name != product.Name {
				t.Logf("FAIL: Name mismatch. Expected %s, got %s", product.Name, retrieved.Name)
				return false
			}

			if retrieved.Description != product.Description {
				t.Logf("FAIL: Description mismatch. Expected %s, got %s", product.Description, retrieved.Description)
				return false
			}

			// Decimal columns round-trip exactly, no tolerance needed
			if !retrieved.Price.Equal(product.Price) {
				t.Logf("FAIL: Price mismatch. Expected %s, got %s", product.Price, retrieved.Price)
				return false
			}

			if retrieved.Inventory != product.Inventory {
				t.Logf("FAIL: Inventory mismatch. Expected %d, got %d", product.Inventory, retrieved.Inventory)
				return false
			}

			// A fresh product has sold nothing
			if retrieved.TotalSold != 0 {
				t.Logf("FAIL: TotalSold should be 0 on creation, got %d", retrieved.TotalSold)
				return false
			}

			if len(retrieved.CategoryIDs) != 1 || retrieved.CategoryIDs[0] != category.ID {
				t.Logf("FAIL: CategoryIDs mismatch. Expected [%s], got %v", category.ID, retrieved.CategoryIDs)
				return false
			}

			if retrieved.CreatedAt.IsZero() || retrieved.UpdatedAt.IsZero() {
				t.Logf("FAIL: Timestamps not set")
				return false
			}

			// Cleanup
			_ = productRepo.Delete(ctx, product.ID)

			return true
		},
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),       // name
		gen.RegexMatch(`[A-Za-z0-9 .,!?]{10,200}`), // description
		gen.Int64Range(1, 999999),                  // price in cents
		gen.IntRange(0, 1000),                      // inventory
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: ordering-platform, Property 14: Product updates are reflected
// Validates: Requirements 5.1, 5.3
func TestProperty_ProductUpdatesAreReflected(t *testing.T) {
	productRepo := NewProductRepository(testDB)
	owner := createTestUser(t)

	properties := gopter.NewProperties(nil)

	properties.Property("updating a product and retrieving it shows the updated values", prop.ForAll(
		func(name1 string, name2 string, description1 string, description2 string,
			priceCents1 int64, priceCents2 int64, inventory int) bool {
			ctx := context.Background()

			product := &domain.Product{
				ID:          uuid.New(),
				UserID:      owner.ID,
				Name:        name1,
				Description: description1,
				Price:       decimal.NewFromInt(priceCents1).Div(decimal.NewFromInt(100)),
				Inventory:   inventory,
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}

			err := productRepo.Create(ctx, product)
			if err != nil {
				t.Logf("FAIL: Failed to create product: %v", err)
				return false
			}

			price2 := decimal.NewFromInt(priceCents2).Div(decimal.NewFromInt(100))
			product.Name = name2
			product.Description = description2
			product.Price = price2
			product.UpdatedAt = time.Now()

			err = productRepo.Update(ctx, product)
			if err != nil {
				t.Logf("FAIL: Failed to update product: %v", err)
				return false
			}

			retrieved, err := productRepo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: Failed to retrieve product: %v", err)
				return false
			}

			if retrieved.Name != name2 {
				t.Logf("FAIL: Name not updated. Expected %s, got %s", name2, retrieved.Name)
				return false
			}

			if retrieved.Description != description2 {
				t.Logf("FAIL: Description not updated. Expected %s, got %s", description2, retrieved.Description)
				return false
			}

			if !retrieved.Price.Equal(price2) {
				t.Logf("FAIL: Price not updated. Expected %s, got %s", price2, retrieved.Price)
				return false
			}

			// Update must not touch the inventory ledger
			if retrieved.Inventory != inventory {
				t.Logf("FAIL: Update changed inventory. Expected %d, got %d", inventory, retrieved.Inventory)
				return false
			}

			// Cleanup
			_ = productRepo.Delete(ctx, product.ID)

			return true
		},
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),       // name1
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),       // name2
		gen.RegexMatch(`[A-Za-z0-9 .,!?]{10,200}`), // description1
		gen.RegexMatch(`[A-Za-z0-9 .,!?]{10,200}`), // description2
		gen.Int64Range(1, 999999),                  // price1 in cents
		gen.Int64Range(1, 999999),                  // price2 in cents
		gen.IntRange(0, 1000),                      // inventory
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: ordering-platform, Property 16: Product deletion removes from catalog
// Validates: Requirements 6.1
func TestProperty_ProductDeletionRemovesFromCatalog(t *testing.T) {
	productRepo := NewProductRepository(testDB)
	owner := createTestUser(t)

	properties := gopter.NewProperties(nil)

	properties.Property("deleting a product makes it not retrievable", prop.ForAll(
		func(name string, description string, priceCents int64, inventory int) bool {
			ctx := context.Background()

			product := &domain.Product{
				ID:          uuid.New(),
				UserID:      owner.ID,
				Name:        name,
				Description: description,
				Price:       decimal.NewFromInt(priceCents).Div(decimal.NewFromInt(100)),
				Inventory:   inventory,
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}

			err := productRepo.Create(ctx, product)
			if err != nil {
				t.Logf("FAIL: Failed to create product: %v", err)
				return false
			}

			// Verify product exists
			_, err = productRepo.FindByID(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: Product should exist before deletion: %v", err)
				return false
			}

			err = productRepo.Delete(ctx, product.ID)
			if err != nil {
				t.Logf("FAIL: Failed to delete product: %v", err)
				return false
			}

			// Attempt to retrieve the deleted product
			_, err = productRepo.FindByID(ctx, product.ID)
			if err != ErrProductNotFound {
				t.Logf("FAIL: Expected ErrProductNotFound after deletion, got: %v", err)
				return false
			}

			return true
		},
		gen.RegexMatch(`[A-Za-z0-9 ]{3,50}`),       // name
		gen.RegexMatch(`[A-Za-z0-9 .,!?]{10,200}`), // description
		gen.Int64Range(1, 999999),                  // price in cents
		gen.IntRange(0, 1000),                      // inventory
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
