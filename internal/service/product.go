package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ProductService каталог товаров. Изменения доступны только администраторам.
type ProductService interface {
	ListProducts(ctx context.Context, query ProductQuery) (*models.ProductPage, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	CreateProduct(ctx context.Context, principal models.Principal, input ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, principal models.Principal, id uuid.UUID, input ProductInput) (*models.Product, error)
	SetStock(ctx context.Context, principal models.Principal, id uuid.UUID, stock int) (*models.Product, error)
	DeleteProduct(ctx context.Context, principal models.Principal, id uuid.UUID) error
}

// ProductQuery страницы считаются с единицы
type ProductQuery struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

type ProductInput struct {
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Stock       int
	Image       string
}

type productService struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
}

func NewProductService(log *slog.Logger, productRepo storage.ProductStorage) ProductService {
	return &productService{
		log:         log,
		productRepo: productRepo,
	}
}

func (s *productService) ListProducts(ctx context.Context, query ProductQuery) (*models.ProductPage, error) {
	const op = "service.ProductService.ListProducts"
	logger := s.log.With(slog.String("op", op))

	limit, page := query.Limit, query.Page
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if page < 1 {
		page = 1
	}

	filter := models.ProductFilter{
		Category: strings.TrimSpace(query.Category),
		Search:   strings.TrimSpace(query.Search),
		Limit:    limit,
		Offset:   (page - 1) * limit,
	}
	products, err := s.productRepo.ListProducts(ctx, filter)
	if err != nil {
		logger.Error("failed to list products", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list products: %w", op, err)
	}
	total, err := s.productRepo.CountProducts(ctx, filter)
	if err != nil {
		logger.Error("failed to count products", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to count products: %w", op, err)
	}
	if products == nil {
		products = []*models.Product{}
	}
	return &models.ProductPage{
		Products:   products,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

func (s *productService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	const op = "service.ProductService.GetProduct"

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("%s: failed to get product: %w", op, err)
	}
	return product, nil
}

func (s *productService) CreateProduct(ctx context.Context, principal models.Principal, input ProductInput) (*models.Product, error) {
	const op = "service.ProductService.CreateProduct"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", principal.UserID))

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	createdBy := principal.UserID
	product, err := s.productRepo.CreateProduct(ctx, &models.Product{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Category:    strings.TrimSpace(input.Category),
		Price:       input.Price.Round(2),
		Stock:       input.Stock,
		Image:       input.Image,
		CreatedBy:   &createdBy,
	})
	if err != nil {
		logger.Error("failed to create product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create product: %w", op, err)
	}

	logger.Info("product created", slog.String("productID", product.ID.String()))
	return product, nil
}

// UpdateProduct полная правка карточки, остаток тоже выставляется абсолютным значением.
// Цены уже оформленных заказов не меняются.
func (s *productService) UpdateProduct(ctx context.Context, principal models.Principal, id uuid.UUID, input ProductInput) (*models.Product, error) {
	const op = "service.ProductService.UpdateProduct"
	logger := s.log.With(slog.String("op", op), slog.String("productID", id.String()))

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.productRepo.UpdateProduct(ctx, &models.Product{
		ID:          id,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Category:    strings.TrimSpace(input.Category),
		Price:       input.Price.Round(2),
		Stock:       input.Stock,
		Image:       input.Image,
	})
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		logger.Error("failed to update product", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update product: %w", op, err)
	}

	logger.Info("product updated")
	return product, nil
}

func validateProductInput(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if input.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if input.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

// SetStock ручная правка остатка, абсолютным значением
func (s *productService) SetStock(ctx context.Context, principal models.Principal, id uuid.UUID, stock int) (*models.Product, error) {
	const op = "service.ProductService.SetStock"
	logger := s.log.With(slog.String("op", op), slog.String("productID", id.String()))

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}

	product, err := s.productRepo.SetStock(ctx, id, stock)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		logger.Error("failed to set stock", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to set stock: %w", op, err)
	}

	logger.Info("stock updated", slog.Int("stock", stock))
	return product, nil
}

// DeleteProduct заказы с этим товаром сохраняют замороженные позиции
func (s *productService) DeleteProduct(ctx context.Context, principal models.Principal, id uuid.UUID) error {
	const op = "service.ProductService.DeleteProduct"

	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if err := s.productRepo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return ErrProductNotFound
		}
		s.log.Error("failed to delete product", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: failed to delete product: %w", op, err)
	}
	s.log.Info("product deleted", slog.String("op", op), slog.String("productID", id.String()))
	return nil
}
