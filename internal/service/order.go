package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

// OrderNotifier получает факты о зафиксированных заказах (чат).
// Реализация не должна блокировать вызывающего.
type OrderNotifier interface {
	NotifyOrder(event models.OrderEvent)
}

// OrderMetrics счётчики ядра заказов
type OrderMetrics interface {
	OrderCreated()
	OrderRejected(reason string)
	OrderTransitioned(status models.OrderStatus)
	StockCompensated(items int)
}

// OrderService оформление заказов и смена их статуса
type OrderService interface {
	CreateOrder(ctx context.Context, userID int64, input CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, principal models.Principal, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error)
	Cancel(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error)
	Complete(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error)
}

// CreateOrderInput уже провалидированный на границе запрос на оформление
type CreateOrderInput struct {
	Items           []models.CartItem
	Total           decimal.Decimal // итог, посчитанный клиентом
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	Notes           string
}

type orderService struct {
	log         *slog.Logger
	db          *sql.DB
	productRepo storage.ProductStorage
	orderRepo   storage.OrderStorage
	ledger      InventoryLedger
	notifier    OrderNotifier
	metrics     OrderMetrics
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	productRepo storage.ProductStorage,
	orderRepo storage.OrderStorage,
	ledger InventoryLedger,
	notifier OrderNotifier,
	metrics OrderMetrics,
) OrderService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &orderService{
		log:         log,
		db:          db,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		ledger:      ledger,
		notifier:    notifier,
		metrics:     metrics,
	}
}

// CreateOrder оформляет заказ из корзины.
// Снимок товаров, резервирование остатков и запись заказа идут в одной транзакции.
// Если бронь падает на середине, уже списанные позиции возвращаются через Restore
// до отката, так что частичных резервов не остаётся.
func (s *orderService) CreateOrder(ctx context.Context, userID int64, input CreateOrderInput) (*models.Order, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", userID), slog.Int("items", len(input.Items)))
	logger.Info("starting checkout transaction")

	// пустая корзина отклоняется до любого обращения к каталогу
	if len(input.Items) == 0 {
		s.metrics.OrderRejected(rejectionReason(ErrEmptyCart))
		logger.Warn("empty cart")
		return nil, ErrEmptyCart
	}
	if err := validateOrderInput(&input); err != nil {
		s.metrics.OrderRejected(rejectionReason(err))
		logger.Warn("invalid order input", slog.Any("error", err))
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	products, err := s.productRepo.GetProductsByIDsTx(ctx, tx, productIDs(input.Items))
	if err != nil {
		rollback(logger, tx)
		logger.Error("failed to load products", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to load products: %w", op, err)
	}

	cart, err := ValidateCart(input.Items, input.Total, products)
	if err != nil {
		rollback(logger, tx)
		s.metrics.OrderRejected(rejectionReason(err))
		logger.Warn("cart rejected", slog.Any("error", err))
		return nil, err
	}

	reserved := make([]models.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if _, err := s.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity); err != nil {
			s.compensate(ctx, logger, tx, reserved)
			rollback(logger, tx)
			if IsBusinessError(err) {
				s.metrics.OrderRejected(rejectionReason(err))
				logger.Warn("reservation failed", slog.Any("error", err))
				return nil, err
			}
			logger.Error("failed to reserve stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to reserve stock: %w", op, err)
		}
		reserved = append(reserved, item)
	}

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Items:           cart.Items,
		Total:           cart.Total, // никогда не итог клиента
		Status:          models.StatusPending,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   input.PaymentMethod,
		Notes:           input.Notes,
	}
	if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
		s.compensate(ctx, logger, tx, reserved)
		rollback(logger, tx)
		logger.Error("failed to create order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create order: %w", op, err)
	}

	// после неудачного коммита вызывающий не может отличить его от потери сети,
	// повторять оформление вслепую нельзя
	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	s.metrics.OrderCreated()
	s.notifier.NotifyOrder(models.NewOrderEvent(models.OrderCreated, order))

	logger.Info("order created successfully",
		slog.String("orderID", order.ID.String()),
		slog.String("orderNumber", order.OrderNumber()),
		slog.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// compensate возвращает на склад то, что уже успели зарезервировать, в обратном порядке
func (s *orderService) compensate(ctx context.Context, logger *slog.Logger, tx *sql.Tx, reserved []models.OrderItem) {
	if len(reserved) == 0 {
		return
	}
	restored := 0
	for i := len(reserved) - 1; i >= 0; i-- {
		item := reserved[i]
		if _, err := s.ledger.Restore(ctx, tx, item.ProductID, item.Quantity); err != nil {
			logger.Error("failed to restore reserved stock",
				slog.String("productID", item.ProductID.String()),
				slog.Int("quantity", item.Quantity),
				slog.Any("error", err),
			)
			continue
		}
		restored++
	}
	// в метрику идут только реально возвращённые позиции
	if restored > 0 {
		s.metrics.StockCompensated(restored)
	}
	logger.Info("reservations compensated", slog.Int("items", restored), slog.Int("failed", len(reserved)-restored))
}

func (s *orderService) Cancel(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error) {
	return s.Transition(ctx, principal, orderID, models.StatusCancelled)
}

func (s *orderService) Complete(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error) {
	return s.Transition(ctx, principal, orderID, models.StatusCompleted)
}

// Transition переводит заказ из pending в completed или cancelled.
// Отмена возвращает остатки всех позиций в той же транзакции, что и смена статуса.
func (s *orderService) Transition(ctx context.Context, principal models.Principal, orderID uuid.UUID, status models.OrderStatus) (*models.Order, error) {
	const op = "service.OrderService.Transition"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("orderID", orderID.String()),
		slog.String("status", string(status)),
		slog.Int64("userID", principal.UserID),
	)
	logger.Info("starting status transition")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	// блокировка строки заказа: две параллельные отмены не вернут остаток дважды
	order, err := s.orderRepo.LockOrderByIDTx(ctx, tx, orderID)
	if err != nil {
		rollback(logger, tx)
		switch {
		case errors.Is(err, storage.ErrOrderNotFound):
			logger.Warn("order not found")
			return nil, ErrOrderNotFound
		case errors.Is(err, storage.ErrOrderLocked):
			logger.Warn("order is locked")
			return nil, ErrConcurrentUpdate
		}
		logger.Error("failed to get order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}

	if !canTransition(principal, order, status) {
		rollback(logger, tx)
		logger.Warn("transition forbidden")
		return nil, ErrForbidden
	}
	if order.Status != models.StatusPending || !status.IsTerminal() {
		rollback(logger, tx)
		logger.Warn("invalid transition", slog.String("current", string(order.Status)))
		return nil, ErrInvalidTransition
	}

	if status == models.StatusCancelled {
		// тот же порядок строк, что и при оформлении, иначе отмена и checkout могут взаимно заблокироваться
		for _, item := range itemsByProductID(order.Items) {
			_, err := s.ledger.Restore(ctx, tx, item.ProductID, item.Quantity)
			if err == nil {
				continue
			}
			// товар удалён из каталога - возвращать остаток некуда
			if errors.Is(err, ErrProductNotFound) {
				logger.Warn("product no longer exists, stock not restored",
					slog.String("productID", item.ProductID.String()),
					slog.Int("quantity", item.Quantity),
				)
				continue
			}
			rollback(logger, tx)
			logger.Error("failed to restore stock", slog.Any("error", err))
			return nil, fmt.Errorf("%s: failed to restore stock: %w", op, err)
		}
	}

	updatedAt, err := s.orderRepo.UpdateOrderStatus(ctx, tx, order.ID, status)
	if err != nil {
		rollback(logger, tx)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	order.Status = status
	order.UpdatedAt = updatedAt

	s.metrics.OrderTransitioned(status)
	eventType := models.OrderCompleted
	if status == models.StatusCancelled {
		eventType = models.OrderCancelled
	}
	s.notifier.NotifyOrder(models.NewOrderEvent(eventType, order))

	logger.Info("order status updated successfully")
	return order, nil
}

// canTransition администратор может всё, владелец - только отменить свой заказ
func canTransition(principal models.Principal, order *models.Order, status models.OrderStatus) bool {
	if principal.IsAdmin() {
		return true
	}
	return status == models.StatusCancelled && order.IsOwnedBy(principal.UserID)
}

// validateOrderInput последняя линия проверки входа перед ядром
func validateOrderInput(input *CreateOrderInput) error {
	addr := input.ShippingAddress
	if strings.TrimSpace(addr.Address) == "" || strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" || strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrInvalidInput)
	}
	if len([]rune(input.Notes)) > models.MaxNotesLength {
		return fmt.Errorf("%w: notes are longer than %d characters", ErrInvalidInput, models.MaxNotesLength)
	}
	pm, ok := models.ParsePaymentMethod(string(input.PaymentMethod))
	if !ok {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, input.PaymentMethod)
	}
	input.PaymentMethod = pm
	if input.Total.IsNegative() {
		return fmt.Errorf("%w: total must not be negative", ErrInvalidInput)
	}
	for _, item := range input.Items {
		if item.Quantity < models.MinItemQuantity || item.Quantity > models.MaxItemQuantity {
			return fmt.Errorf("%w: quantity must be between %d and %d", ErrInvalidInput, models.MinItemQuantity, models.MaxItemQuantity)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
		}
	}
	return nil
}

func productIDs(items []models.CartItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func rollback(logger *slog.Logger, tx *sql.Tx) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}

type nopNotifier struct{}

func (nopNotifier) NotifyOrder(models.OrderEvent) {}

type nopMetrics struct{}

func (nopMetrics) OrderCreated()                        {}
func (nopMetrics) OrderRejected(string)                 {}
func (nopMetrics) OrderTransitioned(models.OrderStatus) {}
func (nopMetrics) StockCompensated(int)                 {}

// itemsByProductID копия позиций, упорядоченная как uuid в postgres (побайтово)
func itemsByProductID(items []models.OrderItem) []models.OrderItem {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b models.OrderItem) int {
		return bytes.Compare(a.ProductID[:], b.ProductID[:])
	})
	return sorted
}
