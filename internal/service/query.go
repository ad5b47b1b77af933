package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

// OrderQueryService чтение заказов и статистики с учётом прав субъекта.
type OrderQueryService interface {
	GetOrder(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, principal models.Principal, query ListOrdersQuery) ([]*models.Order, error)
	GetStats(ctx context.Context, principal models.Principal) (*models.OrderStats, error)
}

// ListOrdersQuery фильтр из запроса. Пустой Status - все статусы.
type ListOrdersQuery struct {
	UserID *int64
	Status string
}

type orderQueryService struct {
	log       *slog.Logger
	orderRepo storage.OrderStorage
}

func NewOrderQueryService(log *slog.Logger, orderRepo storage.OrderStorage) OrderQueryService {
	return &orderQueryService{
		log:       log,
		orderRepo: orderRepo,
	}
}

// GetOrder заказ виден владельцу и любому администратору
func (s *orderQueryService) GetOrder(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error) {
	const op = "service.OrderQueryService.GetOrder"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID.String()))

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if !principal.IsAdmin() && !order.IsOwnedBy(principal.UserID) {
		logger.Warn("order access forbidden", slog.Int64("userID", principal.UserID))
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders не-администратор всегда видит только свои заказы
func (s *orderQueryService) ListOrders(ctx context.Context, principal models.Principal, query ListOrdersQuery) ([]*models.Order, error) {
	const op = "service.OrderQueryService.ListOrders"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", principal.UserID))

	var filter models.OrderFilter
	if query.Status != "" {
		status, ok := models.ParseOrderStatus(query.Status)
		if !ok {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, query.Status)
		}
		filter.Status = &status
	}

	switch {
	case !principal.IsAdmin():
		userID := principal.UserID
		filter.UserID = &userID
	case query.UserID != nil:
		userID := *query.UserID
		filter.UserID = &userID
	}

	orders, err := s.orderRepo.ListOrders(ctx, filter)
	if err != nil {
		logger.Error("failed to list orders", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to list orders: %w", op, err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	logger.Debug("orders listed", slog.Int("count", len(orders)))
	return orders, nil
}

// GetStats выручка считается только по завершённым заказам
func (s *orderQueryService) GetStats(ctx context.Context, principal models.Principal) (*models.OrderStats, error) {
	const op = "service.OrderQueryService.GetStats"

	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}

	stats, err := s.orderRepo.GetStats(ctx)
	if err != nil {
		s.log.Error("failed to get stats", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get stats: %w", op, err)
	}
	return stats, nil
}
