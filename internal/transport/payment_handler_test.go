package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/payment"
	"shopline/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fake payment service for testing the handler's error mapping
type fakePaymentService struct {
	sessionID    string
	checkoutErr  error
	webhookOrder *domain.Order
	webhookErr   error
}

func (f *fakePaymentService) CheckoutFromCarts(ctx context.Context, userID uuid.UUID, cartIDs []uuid.UUID, shipping, billing json.RawMessage) (string, error) {
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.sessionID, nil
}

func (f *fakePaymentService) DirectCheckout(ctx context.Context, userID, productID uuid.UUID, quantity int, shipping json.RawMessage) (string, error) {
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	return f.sessionID, nil
}

func (f *fakePaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Order, error) {
	return f.webhookOrder, f.webhookErr
}

func authedRequest(method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, uuid.New().String())
	return req.WithContext(ctx)
}

func TestCheckoutSessionReturnsSessionID(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentService{sessionID: "cs_test_789"}, zap.NewNop())

	body, _ := json.Marshal(CheckoutSessionRequest{
		CartIDs:      []string{uuid.New().String()},
		ShippingInfo: json.RawMessage(`{"address":"1 Main St"}`),
	})
	w := httptest.NewRecorder()

	handler.CheckoutSession(w, authedRequest(http.MethodPost, "/api/payments/checkout_session", body))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp CheckoutSessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Could not decode response: %v", err)
	}
	if resp.ID != "cs_test_789" {
		t.Errorf("Expected session id cs_test_789, got %s", resp.ID)
	}
}

func TestCheckoutSessionMapsInsufficientInventoryTo400(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentService{
		checkoutErr: &repository.InsufficientInventoryError{
			ProductID:   uuid.New(),
			ProductName: "widget",
			Requested:   5,
			Available:   2,
		},
	}, zap.NewNop())

	body, _ := json.Marshal(CheckoutSessionRequest{
		CartIDs:      []string{uuid.New().String()},
		ShippingInfo: json.RawMessage(`{"address":"1 Main St"}`),
	})
	w := httptest.NewRecorder()

	handler.CheckoutSession(w, authedRequest(http.MethodPost, "/api/payments/checkout_session", body))

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for insufficient inventory, got %d", w.Code)
	}
}

func TestStripeWebhookAcksUnknownOrder(t *testing.T) {
	// A confirmation for an order this system does not know cannot succeed on
	// retry either, so the provider gets a 200 and stops redelivering
	handler := NewPaymentHandler(&fakePaymentService{
		webhookErr: repository.ErrOrderNotFound,
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/payments/stripe_webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "sig")
	w := httptest.NewRecorder()

	handler.StripeWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for unknown order, got %d", w.Code)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentService{
		webhookErr: payment.ErrInvalidSignature,
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/payments/stripe_webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "bad")
	w := httptest.NewRecorder()

	handler.StripeWebhook(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad signature, got %d", w.Code)
	}
}
