package transport

import (
	"errors"
	"net/http"
	"strconv"

	"shopline/internal/middleware"
	"shopline/internal/repository"
	"shopline/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// ProductRequest represents the payload for creating or updating a product
type ProductRequest struct {
	Name        string   `json:"name" validate:"required,min=1,max=255"`
	Description string   `json:"description" validate:"max=5000"`
	Price       string   `json:"price" validate:"required"`
	Inventory   int      `json:"inventory" validate:"gte=0"`
	Rating      *int     `json:"rating" validate:"omitempty,gte=0,lte=5"`
	CategoryIDs []string `json:"category_ids" validate:"dive,uuid"`
}

// ProductHandler handles HTTP requests for product operations
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes. Reads are public; writes
// require auth and only touch products the caller owns.
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/{id}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// Create adds a new product owned by the authenticated user
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}

	product, err := h.productService.Create(r.Context(), userID, input)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	h.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("user_id", userID.String()),
	)
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update replaces the writable fields of an owned product. Inventory and
// sales counters are managed by the order workflow and are not writable here.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	productID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}

	product, err := h.productService.Update(r.Context(), userID, productID, input)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Delete removes an owned product
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	productID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.productService.Delete(r.Context(), userID, productID); err != nil {
		h.respondProductError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Get retrieves a single product by id
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	productID, err := urlParamID(r, "id")
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	product, err := h.productService.GetByID(r.Context(), productID)
	if err != nil {
		h.respondProductError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// List retrieves a page of products, optionally filtered by category
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	var categoryID *uuid.UUID
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
			return
		}
		categoryID = &id
	}

	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := repository.SortOrderDesc
	if r.URL.Query().Get("sort_order") == "asc" {
		sortOrder = repository.SortOrderAsc
	}

	products, total, err := h.productService.List(r.Context(), categoryID, page, pageSize, sortBy, sortOrder)
	if err != nil {
		h.logger.Error("Failed to list products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondProductPage(w, products, total, page, pageSize)
}

// Search retrieves a page of products matching the query string
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, pageSize := parsePagination(r)

	products, total, err := h.productService.Search(r.Context(), r.URL.Query().Get("q"), page, pageSize)
	if err != nil {
		h.logger.Error("Failed to search products", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondProductPage(w, products, total, page, pageSize)
}

func (h *ProductHandler) decodeProductInput(w http.ResponseWriter, r *http.Request) (service.ProductInput, bool) {
	var req ProductRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		h.logger.Debug("Product validation failed", zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return service.ProductInput{}, false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return service.ProductInput{}, false
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		middleware.RespondWithError(w, http.StatusBadRequest, "price must be a positive decimal")
		return service.ProductInput{}, false
	}

	categoryIDs := make([]uuid.UUID, 0, len(req.CategoryIDs))
	for _, raw := range req.CategoryIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
			return service.ProductInput{}, false
		}
		categoryIDs = append(categoryIDs, id)
	}

	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Inventory:   req.Inventory,
		Rating:      req.Rating,
		CategoryIDs: categoryIDs,
	}, true
}

func (h *ProductHandler) respondProductPage(w http.ResponseWriter, products any, total, page, pageSize int) {
	middleware.RespondWithJSON(w, http.StatusOK, map[string]any{
		"products":  products,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *ProductHandler) respondProductError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, repository.ErrCategoryNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "category not found")
	default:
		h.logger.Error("Product operation failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = defaultPage
	if raw := r.URL.Query().Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}

	pageSize = defaultPageSize
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxPageSize {
			pageSize = n
		}
	}

	return page, pageSize
}
