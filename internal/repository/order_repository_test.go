package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"shopline/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var testShipping = json.RawMessage(`{"address":"123 Test St","city":"Testville"}`)

// createTestProduct inserts a product with the given price and inventory
func createTestProduct(t *testing.T, ownerID uuid.UUID, price decimal.Decimal, inventory int) *domain.Product {
	t.Helper()

	id := uuid.New()
	product := &domain.Product{
		ID:        id,
		UserID:    ownerID,
		Name:      "product " + id.String()[:8],
		Price:     price,
		Inventory: inventory,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := NewProductRepository(testDB).Create(context.Background(), product); err != nil {
		t.Fatalf("Failed to create test product: %v", err)
	}
	return product
}

// addToCart inserts a cart entry for the given user and product
func addToCart(t *testing.T, user *domain.User, product *domain.Product, quantity int) *domain.Cart {
	t.Helper()

	cart := &domain.Cart{
		ID:        uuid.New(),
		UserID:    user.ID,
		ProductID: product.ID,
		UnitPrice: product.Price,
		Quantity:  quantity,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := NewCartRepository(testDB).Add(context.Background(), cart); err != nil {
		t.Fatalf("Failed to add cart entry: %v", err)
	}
	return cart
}

func productLedger(t *testing.T, productID uuid.UUID) (inventory, totalSold int) {
	t.Helper()

	err := testDB.QueryRow(
		`SELECT inventory, total_sold FROM products WHERE id = $1`, productID).
		Scan(&inventory, &totalSold)
	if err != nil {
		t.Fatalf("Failed to read product ledger: %v", err)
	}
	return inventory, totalSold
}

// Feature: ordering-platform, Property 25: Order creation consumes carts and
// decrements inventory exactly once
// Validates: Requirements 9.1, 9.3
func TestCreateFromCarts(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	productA := createTestProduct(t, seller.ID, decimal.RequireFromString("19.99"), 10)
	productB := createTestProduct(t, seller.ID, decimal.RequireFromString("5.50"), 4)

	cartA := addToCart(t, buyer, productA, 3)
	cartB := addToCart(t, buyer, productB, 2)

	order, err := orderRepo.CreateFromCarts(ctx, buyer.ID,
		[]uuid.UUID{cartA.ID, cartB.ID}, testShipping, nil)
	if err != nil {
		t.Fatalf("CreateFromCarts failed: %v", err)
	}

	if order.Status != domain.OrderStatusPending {
		t.Errorf("Expected new order to be pending, got %s", order.Status)
	}

	if len(order.Items) != 2 {
		t.Fatalf("Expected 2 order items, got %d", len(order.Items))
	}

	wantTotal := decimal.RequireFromString("70.97") // 3*19.99 + 2*5.50
	if !order.Total().Equal(wantTotal) {
		t.Errorf("Expected order total %s, got %s", wantTotal, order.Total())
	}

	// Both cart entries were consumed
	if _, err := cartRepo.FindByID(ctx, cartA.ID); !errors.Is(err, ErrCartNotFound) {
		t.Errorf("Expected cart A to be consumed, got: %v", err)
	}
	if _, err := cartRepo.FindByID(ctx, cartB.ID); !errors.Is(err, ErrCartNotFound) {
		t.Errorf("Expected cart B to be consumed, got: %v", err)
	}

	// The ledger moved exactly once per product
	if inv, sold := productLedger(t, productA.ID); inv != 7 || sold != 3 {
		t.Errorf("Product A ledger: expected inventory 7 / sold 3, got %d / %d", inv, sold)
	}
	if inv, sold := productLedger(t, productB.ID); inv != 2 || sold != 2 {
		t.Errorf("Product B ledger: expected inventory 2 / sold 2, got %d / %d", inv, sold)
	}
}

// Feature: ordering-platform, Property 33: Repeated cart ids in one request
// are consumed once
// Validates: Requirements 9.1, 9.3
func TestCreateFromCartsCollapsesDuplicateCartIDs(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	// Inventory covers the cart quantity once but not twice
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("6.00"), 3)
	cart := addToCart(t, buyer, product, 2)

	order, err := orderRepo.CreateFromCarts(ctx, buyer.ID,
		[]uuid.UUID{cart.ID, cart.ID, cart.ID}, testShipping, nil)
	if err != nil {
		t.Fatalf("CreateFromCarts failed: %v", err)
	}

	if len(order.Items) != 1 {
		t.Fatalf("Expected 1 order item, got %d", len(order.Items))
	}
	if order.Items[0].Quantity != 2 {
		t.Errorf("Expected item quantity 2, got %d", order.Items[0].Quantity)
	}
	if !order.Total().Equal(decimal.RequireFromString("12.00")) {
		t.Errorf("Expected order total 12.00, got %s", order.Total())
	}

	if _, err := cartRepo.FindByID(ctx, cart.ID); !errors.Is(err, ErrCartNotFound) {
		t.Errorf("Expected cart to be consumed, got: %v", err)
	}

	// The ledger moved once, not once per repeated id
	if inv, sold := productLedger(t, product.ID); inv != 1 || sold != 2 {
		t.Errorf("Ledger: expected inventory 1 / sold 2, got %d / %d", inv, sold)
	}
}

// Feature: ordering-platform, Property 26: Order item prices are frozen at
// creation time
// Validates: Requirements 9.2
func TestOrderItemPricesAreFrozen(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	productRepo := NewProductRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("12.00"), 10)
	cart := addToCart(t, buyer, product, 1)

	order, err := orderRepo.CreateFromCarts(ctx, buyer.ID, []uuid.UUID{cart.ID}, testShipping, nil)
	if err != nil {
		t.Fatalf("CreateFromCarts failed: %v", err)
	}

	// Raise the catalog price after the order exists
	product.Price = decimal.RequireFromString("99.00")
	product.UpdatedAt = time.Now()
	if err := productRepo.Update(ctx, product); err != nil {
		t.Fatalf("Failed to update product price: %v", err)
	}

	reloaded, err := orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}

	if !reloaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.00")) {
		t.Errorf("Expected frozen unit price 12.00, got %s", reloaded.Items[0].UnitPrice)
	}
}

// Feature: ordering-platform, Property 27: Orders with insufficient inventory
// are rejected without any side effect
// Validates: Requirements 9.4
func TestCreateFromCartsInsufficientInventoryIsAtomic(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	plentiful := createTestProduct(t, seller.ID, decimal.RequireFromString("3.00"), 100)
	scarce := createTestProduct(t, seller.ID, decimal.RequireFromString("7.00"), 1)

	cartOK := addToCart(t, buyer, plentiful, 5)
	cartShort := addToCart(t, buyer, scarce, 2)

	_, err := orderRepo.CreateFromCarts(ctx, buyer.ID,
		[]uuid.UUID{cartOK.ID, cartShort.ID}, testShipping, nil)

	var insufficientErr *InsufficientInventoryError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("Expected InsufficientInventoryError, got: %v", err)
	}
	if insufficientErr.ProductID != scarce.ID {
		t.Errorf("Expected shortfall on scarce product, got %s", insufficientErr.ProductID)
	}
	if insufficientErr.Requested != 2 || insufficientErr.Available != 1 {
		t.Errorf("Expected requested 2 / available 1, got %d / %d",
			insufficientErr.Requested, insufficientErr.Available)
	}

	// Nothing moved: carts survive and both ledgers are untouched
	if _, err := cartRepo.FindByID(ctx, cartOK.ID); err != nil {
		t.Errorf("Expected surviving cart entry, got: %v", err)
	}
	if _, err := cartRepo.FindByID(ctx, cartShort.ID); err != nil {
		t.Errorf("Expected surviving cart entry, got: %v", err)
	}
	if inv, sold := productLedger(t, plentiful.ID); inv != 100 || sold != 0 {
		t.Errorf("Plentiful ledger moved: inventory %d, sold %d", inv, sold)
	}
	if inv, sold := productLedger(t, scarce.ID); inv != 1 || sold != 0 {
		t.Errorf("Scarce ledger moved: inventory %d, sold %d", inv, sold)
	}
}

// Feature: ordering-platform, Property 28: Foreign cart entries are reported
// as not found
// Validates: Requirements 9.5
func TestCreateFromCartsRejectsForeignCarts(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)

	owner := createTestUser(t)
	intruder := createTestUser(t)
	seller := createTestUser(t)
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("2.00"), 10)
	cart := addToCart(t, owner, product, 1)

	_, err := orderRepo.CreateFromCarts(ctx, intruder.ID, []uuid.UUID{cart.ID}, testShipping, nil)
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("Expected ErrCartNotFound for foreign cart, got: %v", err)
	}

	// The owner's cart is untouched
	if inv, sold := productLedger(t, product.ID); inv != 10 || sold != 0 {
		t.Errorf("Ledger moved: inventory %d, sold %d", inv, sold)
	}
}

// Feature: ordering-platform, Property 30: Cancellation reverses the ledger
// exactly once
// Validates: Requirements 11.1, 11.3
func TestCancelReversesLedgerOnce(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("8.00"), 6)
	cart := addToCart(t, buyer, product, 4)

	order, err := orderRepo.CreateFromCarts(ctx, buyer.ID, []uuid.UUID{cart.ID}, testShipping, nil)
	if err != nil {
		t.Fatalf("CreateFromCarts failed: %v", err)
	}
	if inv, sold := productLedger(t, product.ID); inv != 2 || sold != 4 {
		t.Fatalf("Ledger after creation: inventory %d, sold %d", inv, sold)
	}

	cancelled, err := orderRepo.Cancel(ctx, order.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("Expected cancelled status, got %s", cancelled.Status)
	}
	if inv, sold := productLedger(t, product.ID); inv != 6 || sold != 0 {
		t.Errorf("Ledger after cancel: expected 6 / 0, got %d / %d", inv, sold)
	}

	// Cancelling again must fail and must not reverse the ledger a second time
	_, err = orderRepo.Cancel(ctx, order.ID)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition on double cancel, got: %v", err)
	}
	if inv, sold := productLedger(t, product.ID); inv != 6 || sold != 0 {
		t.Errorf("Ledger after double cancel: expected 6 / 0, got %d / %d", inv, sold)
	}
}

// Feature: ordering-platform, Property 31: Redelivered payment confirmations
// are a no-op
// Validates: Requirements 12.3
func TestMarkPaidIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("1.00"), 5)
	cart := addToCart(t, buyer, product, 1)

	order, err := orderRepo.CreateFromCarts(ctx, buyer.ID, []uuid.UUID{cart.ID}, testShipping, nil)
	if err != nil {
		t.Fatalf("CreateFromCarts failed: %v", err)
	}

	paid, err := orderRepo.MarkPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if paid.Status != domain.OrderStatusPaid {
		t.Errorf("Expected paid status, got %s", paid.Status)
	}

	// A second confirmation for the same order succeeds without effect
	again, err := orderRepo.MarkPaid(ctx, order.ID)
	if err != nil {
		t.Fatalf("Redelivered MarkPaid failed: %v", err)
	}
	if again.Status != domain.OrderStatusPaid {
		t.Errorf("Expected paid status after redelivery, got %s", again.Status)
	}

	// Paying a cancelled order is rejected
	if _, err := orderRepo.Cancel(ctx, order.ID); err != nil {
		t.Fatalf("Cancel of paid order failed: %v", err)
	}
	if _, err := orderRepo.MarkPaid(ctx, order.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition paying a cancelled order, got: %v", err)
	}
}

// Feature: ordering-platform, Property 32: A checkout session links to exactly
// one order
// Validates: Requirements 12.1
func TestSetCheckoutSessionIDIsUnique(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)

	buyer := createTestUser(t)
	seller := createTestUser(t)
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("4.00"), 10)

	first, err := orderRepo.CreateDirect(ctx, buyer.ID, product.ID, 1, testShipping)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}
	second, err := orderRepo.CreateDirect(ctx, buyer.ID, product.ID, 1, testShipping)
	if err != nil {
		t.Fatalf("CreateDirect failed: %v", err)
	}

	sessionID := "cs_test_" + uuid.New().String()
	if err := orderRepo.SetCheckoutSessionID(ctx, first.ID, sessionID); err != nil {
		t.Fatalf("SetCheckoutSessionID failed: %v", err)
	}

	err = orderRepo.SetCheckoutSessionID(ctx, second.ID, sessionID)
	if !errors.Is(err, ErrCheckoutSessionTaken) {
		t.Errorf("Expected ErrCheckoutSessionTaken, got: %v", err)
	}
}

// Feature: ordering-platform, Property 29: Concurrent orders never oversell
// Validates: Requirements 10.1, 10.2
func TestConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)

	seller := createTestUser(t)
	const stock = 5
	const buyers = 20
	product := createTestProduct(t, seller.ID, decimal.RequireFromString("10.00"), stock)

	users := make([]*domain.User, buyers)
	for i := range users {
		users[i] = createTestUser(t)
	}

	var wg sync.WaitGroup
	results := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(u *domain.User) {
			defer wg.Done()
			_, err := orderRepo.CreateDirect(ctx, u.ID, product.ID, 1, testShipping)
			results <- err
		}(users[i])
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var insufficientErr *InsufficientInventoryError
		if !errors.As(err, &insufficientErr) {
			t.Errorf("Unexpected error from concurrent order: %v", err)
		}
	}

	if successes != stock {
		t.Errorf("Expected exactly %d successful orders, got %d", stock, successes)
	}

	if inv, sold := productLedger(t, product.ID); inv != 0 || sold != stock {
		t.Errorf("Ledger after concurrent orders: expected 0 / %d, got %d / %d", stock, inv, sold)
	}
}

// Feature: ordering-platform, Property 34: Concurrent creation and cancellation
// over the same products make progress
// Validates: Requirements 10.1, 11.1
func TestConcurrentCreateAndCancelMakeProgress(t *testing.T) {
	ctx := context.Background()
	orderRepo := NewOrderRepository(testDB)
	cartRepo := NewCartRepository(testDB)

	seller := createTestUser(t)
	const stock = 1000
	productA := createTestProduct(t, seller.ID, decimal.RequireFromString("2.00"), stock)
	productB := createTestProduct(t, seller.ID, decimal.RequireFromString("3.00"), stock)

	const workers = 4
	const rounds = 10

	buyerPool := make([]*domain.User, workers)
	for i := range buyerPool {
		buyerPool[i] = createTestUser(t)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(buyer *domain.User) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				now := time.Now()
				cartA := &domain.Cart{
					ID: uuid.New(), UserID: buyer.ID, ProductID: productA.ID,
					UnitPrice: productA.Price, Quantity: 1, CreatedAt: now, UpdatedAt: now,
				}
				cartB := &domain.Cart{
					ID: uuid.New(), UserID: buyer.ID, ProductID: productB.ID,
					UnitPrice: productB.Price, Quantity: 1, CreatedAt: now, UpdatedAt: now,
				}
				if err := cartRepo.Add(ctx, cartA); err != nil {
					errs <- err
					return
				}
				if err := cartRepo.Add(ctx, cartB); err != nil {
					errs <- err
					return
				}

				// Cart ids arrive in the opposite order to the cancellation's
				// item order; both paths must still lock products consistently
				order, err := orderRepo.CreateFromCarts(ctx, buyer.ID,
					[]uuid.UUID{cartB.ID, cartA.ID}, testShipping, nil)
				if err != nil {
					errs <- err
					return
				}
				if _, err := orderRepo.Cancel(ctx, order.ID); err != nil {
					errs <- err
					return
				}
			}
		}(buyerPool[w])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent create/cancel failed: %v", err)
	}

	// Every order was cancelled, so both ledgers are back where they started
	if inv, sold := productLedger(t, productA.ID); inv != stock || sold != 0 {
		t.Errorf("Product A ledger: expected %d / 0, got %d / %d", stock, inv, sold)
	}
	if inv, sold := productLedger(t, productB.ID); inv != stock || sold != 0 {
		t.Errorf("Product B ledger: expected %d / 0, got %d / %d", stock, inv, sold)
	}
}
