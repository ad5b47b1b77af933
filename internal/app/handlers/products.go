package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/service"
)

// ProductRequest тело создания и полной правки товара
type ProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"min=0"`
	Image       string          `json:"image"`
}

func (req ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
		Image:       req.Image,
	}
}

// ProductListResponse страница каталога
type ProductListResponse struct {
	Success    bool               `json:"success"`
	Products   []*ProductResponse `json:"products"`
	Pagination models.Pagination  `json:"pagination"`
}

type SetStockRequest struct {
	Stock *int `json:"stock" validate:"required,min=0"`
}

// ListProductsHandler обрабатывает GET /api/products?category=&search=&page=&limit=
func ListProductsHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListProductsHandler"
		logger := log.With(slog.String("op", op))

		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))

		result, err := productService.ListProducts(r.Context(), service.ProductQuery{
			Category: q.Get("category"),
			Search:   q.Get("search"),
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		out := make([]*ProductResponse, 0, len(result.Products))
		for _, p := range result.Products {
			out = append(out, newProductResponse(p))
		}
		writeJSON(w, logger, http.StatusOK, ProductListResponse{
			Success:    true,
			Products:   out,
			Pagination: result.Pagination,
		})
	}
}

// GetProductHandler обрабатывает GET /api/products/{id}
func GetProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetProductHandler"
		logger := log.With(slog.String("op", op))

		id, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}
		product, err := productService.GetProduct(r.Context(), id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newProductResponse(product))
	}
}

// CreateProductHandler обрабатывает POST /api/admin/products
func CreateProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateProductHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		var req ProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "validation error"})
			return
		}

		product, err := productService.CreateProduct(r.Context(), principal, req.input())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, newProductResponse(product))
	}
}

// UpdateProductHandler обрабатывает PUT /api/admin/products/{id}
func UpdateProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateProductHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}

		var req ProductRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "validation error"})
			return
		}

		product, err := productService.UpdateProduct(r.Context(), principal, id, req.input())
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newProductResponse(product))
	}
}

// SetStockHandler обрабатывает PUT /api/admin/products/{id}/stock
func SetStockHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.SetStockHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}

		var req SetStockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validate.Struct(req) != nil {
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "stock must be a non-negative integer"})
			return
		}

		product, err := productService.SetStock(r.Context(), principal, id, *req.Stock)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newProductResponse(product))
	}
}

// DeleteProductHandler обрабатывает DELETE /api/admin/products/{id}
func DeleteProductHandler(log *slog.Logger, productService service.ProductService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.DeleteProductHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}

		if err := productService.DeleteProduct(r.Context(), principal, id); err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, MutationResponse{Success: true, Message: "Product deleted"})
	}
}
