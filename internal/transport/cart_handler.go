package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddToCartRequest represents the payload for adding a product to the cart
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// CartCountResponse carries the number of entries in the user's cart
type CartCountResponse struct {
	Count int `json:"count"`
}

// CartHandler handles HTTP requests for cart operations
type CartHandler struct {
	cartService service.CartService
	logger      *zap.Logger
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		cartService: cartService,
		logger:      logger,
	}
}

// RegisterRoutes registers all cart routes; every operation requires auth
func (h *CartHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/carts", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/", h.Add)
		r.Get("/", h.List)
		r.Get("/count", h.Count)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// Add puts a product into the user's cart
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AddToCartRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Add to cart validation failed", zap.Error(err))

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

	cart, err := h.cartService.Add(r.Context(), userID, productID, req.Quantity)
	if err != nil {
		h.respondCartError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, cart)
}

// List retrieves the user's cart entries
func (h *CartHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	carts, err := h.cartService.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list carts", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, carts)
}

// Get retrieves one cart entry owned by the user
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cartID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	cart, err := h.cartService.Get(r.Context(), userID, cartID)
	if err != nil {
		h.respondCartError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// Update changes the quantity of an owned cart entry. Quantity is the only
// field a cart entry exposes for update; requests touching anything else are
// rejected.
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cartID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for name := range fields {
		if name != "quantity" {
			middleware.RespondWithError(w, http.StatusBadRequest, "only quantity can be updated")
			return
		}
	}

	var quantity int
	raw, ok := fields["quantity"]
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if err := json.Unmarshal(raw, &quantity); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "quantity must be an integer")
		return
	}

	cart, err := h.cartService.UpdateQuantity(r.Context(), userID, cartID, quantity)
	if err != nil {
		h.respondCartError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

// Delete removes an owned cart entry
func (h *CartHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cartID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid cart id")
		return
	}

	if err := h.cartService.Delete(r.Context(), userID, cartID); err != nil {
		h.respondCartError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Count returns the number of entries in the user's cart
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	count, err := h.cartService.Count(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to count cart entries", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CartCountResponse{Count: count})
}

func (h *CartHandler) respondCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrCartNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "cart entry not found")
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "product not found")
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("Cart operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
