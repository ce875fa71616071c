package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"shopline/internal/domain"
	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateOrderRequest represents the order creation payload
type CreateOrderRequest struct {
	CartIDs      []string        `json:"cart_ids" validate:"required,min=1,dive,uuid"`
	ShippingInfo json.RawMessage `json:"shipping_info" validate:"required"`
	BillingInfo  json.RawMessage `json:"billing_info"`
}

// UpdateOrderRequest represents the order update payload. Cancellation is the
// only supported mutation.
type UpdateOrderRequest struct {
	IsCancelled bool `json:"is_cancelled"`
}

// OrderResponse is an order representation with its computed total
type OrderResponse struct {
	*domain.Order
	Total decimal.Decimal `json:"total"`
}

func newOrderResponse(order *domain.Order) OrderResponse {
	return OrderResponse{Order: order, Total: order.Total()}
}

// OrderHandler handles HTTP requests for order operations
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers all order routes
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Get("/{id}/items", h.ListItems)
	})
}

// Create handles order placement from cart entries
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateOrderRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Order validation failed", zap.Error(err))

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

	order, err := h.orderService.Create(r.Context(), userID, cartIDs, req.ShippingInfo, req.BillingInfo)
	if err != nil {
		h.respondOrderError(w, err, "Order creation failed")
		return
	}

	h.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int("items", len(order.Items)),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, newOrderResponse(order))
}

// List handles listing the requester's orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orders, err := h.orderService.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	responses := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, newOrderResponse(order))
	}

	middleware.RespondWithJSON(w, http.StatusOK, responses)
}

// Get handles retrieving one owned order
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, newOrderResponse(order))
}

// ListItems handles retrieving the line items of one owned order
func (h *OrderHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	order, ok := h.ownedOrder(w, r)
	if !ok {
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order.Items)
}

// Update handles order updates. Setting is_cancelled reverses the inventory
// ledger and moves the order to cancelled.
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	orderID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	var req UpdateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !req.IsCancelled {
		middleware.RespondWithError(w, http.StatusBadRequest, "only cancellation is supported")
		return
	}

	order, err := h.orderService.Cancel(r.Context(), userID, orderID)
	if err != nil {
		h.respondOrderError(w, err, "Order cancellation failed")
		return
	}

	h.logger.Info("Order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandler) ownedOrder(w http.ResponseWriter, r *http.Request) (*domain.Order, bool) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	orderID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return nil, false
	}

	order, err := h.orderService.Get(r.Context(), userID, orderID)
	if err != nil {
		h.respondOrderError(w, err, "Failed to get order")
		return nil, false
	}

	return order, true
}

// respondOrderError maps workflow errors to status codes: validation failures
// and inventory shortfalls are client errors with no partial state, foreign
// orders are reported as not found.
func (h *OrderHandler) respondOrderError(w http.ResponseWriter, err error, logMsg string) {
	var insufficientErr *repository.InsufficientInventoryError

	switch {
	case errors.As(err, &insufficientErr):
		middleware.RespondWithError(w, http.StatusBadRequest, insufficientErr.Error())
	case errors.Is(err, repository.ErrCartNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrInvalidTransition):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
	default:
		h.logger.Error(logMsg, zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parseCartIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
