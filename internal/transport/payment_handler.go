package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"shopline/internal/middleware"
	"shopline/internal/payment"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxWebhookBodyBytes bounds webhook payload reads, per Stripe's guidance
const maxWebhookBodyBytes = 65536

// CheckoutSessionRequest represents the cart checkout payload
type CheckoutSessionRequest struct {
	CartIDs      []string        `json:"cart_ids" validate:"required,min=1,dive,uuid"`
	ShippingInfo json.RawMessage `json:"shipping_info" validate:"required"`
	BillingInfo  json.RawMessage `json:"billing_info"`
}

// DirectCheckoutRequest represents the single-product checkout payload
type DirectCheckoutRequest struct {
	ProductID    string          `json:"product_id" validate:"required,uuid"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	ShippingInfo json.RawMessage `json:"shipping_info" validate:"required"`
}

// CheckoutSessionResponse carries the payment-provider session handle
type CheckoutSessionResponse struct {
	ID string `json:"id"`
}

// PaymentHandler handles HTTP requests for checkout and payment webhooks
type PaymentHandler struct {
	paymentService service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// RegisterRoutes registers all payment routes. The webhook endpoint is
// unauthenticated; its integrity comes from signature verification.
func (h *PaymentHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/stripe_webhook", h.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/checkout_session", h.CheckoutSession)
			r.Post("/direct_checkout_session", h.DirectCheckoutSession)
		})
	})
}

// CheckoutSession handles cart checkout: it places a pending order from the
// given carts and returns a payment session handle for it
func (h *PaymentHandler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CheckoutSessionRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Checkout validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cartIDs, err := parseCartIDs(req.CartIDs)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	sessionID, err := h.paymentService.CheckoutFromCarts(r.Context(), userID, cartIDs, req.ShippingInfo, req.BillingInfo)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	h.logger.Info("Checkout session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, CheckoutSessionResponse{ID: sessionID})
}

// DirectCheckoutSession handles single-product checkout without a cart
func (h *PaymentHandler) DirectCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DirectCheckoutRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Direct checkout validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	sessionID, err := h.paymentService.DirectCheckout(r.Context(), userID, productID, req.Quantity, req.ShippingInfo)
	if err != nil {
		h.respondCheckoutError(w, err)
		return
	}

	h.logger.Info("Direct checkout session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, CheckoutSessionResponse{ID: sessionID})
}

// StripeWebhook handles asynchronous payment confirmations. Unknown orders
// are acknowledged so the provider stops retrying a permanently-missing
// target; bad signatures and malformed events are rejected.
func (h *PaymentHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "failed to read payload")
		return
	}

	order, err := h.paymentService.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrMalformedEvent):
			h.logger.Warn("Webhook rejected", zap.Error(err))
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, repository.ErrOrderNotFound):
			h.logger.Warn("Webhook referenced unknown order", zap.Error(err))
			middleware.RespondWithJSON(w, http.StatusOK, map[string]string{})
		case errors.Is(err, repository.ErrInvalidTransition):
			h.logger.Warn("Webhook transition rejected", zap.Error(err))
			middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("Webhook handling failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	if order != nil {
		h.logger.Info("Order marked paid via webhook", zap.String("order_id", order.ID.String()))
	}
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{})
}

func (h *PaymentHandler) respondCheckoutError(w http.ResponseWriter, err error) {
	var insufficientErr *repository.InsufficientInventoryError

	switch {
	case errors.As(err, &insufficientErr):
		middleware.RespondWithError(w, http.StatusBadRequest, insufficientErr.Error())
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrGateway):
		h.logger.Error("Payment gateway request failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to create checkout session")
	default:
		h.logger.Error("Checkout failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
