package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/linemk/order-portal/internal/storage"
)

// InventoryLedger атомарные операции над остатками товаров.
type InventoryLedger interface {
	// Reserve списывает qty, если остатка хватает, и возвращает новый остаток.
	// Либо списывает полностью, либо ничего не меняет.
	Reserve(ctx context.Context, tx *sql.Tx, productID uuid.UUID, qty int) (int, error)
	// Restore возвращает qty на склад (компенсация брони или отмена заказа).
	Restore(ctx context.Context, tx *sql.Tx, productID uuid.UUID, qty int) (int, error)
}

type inventoryLedger struct {
	log         *slog.Logger
	productRepo storage.ProductStorage
}

func NewInventoryLedger(log *slog.Logger, productRepo storage.ProductStorage) InventoryLedger {
	return &inventoryLedger{
		log:         log,
		productRepo: productRepo,
	}
}

func (l *inventoryLedger) Reserve(ctx context.Context, tx *sql.Tx, productID uuid.UUID, qty int) (int, error) {
	const op = "service.InventoryLedger.Reserve"

	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	// проверка остатка и списание - один условный UPDATE
	stock, err := l.productRepo.DecrementStock(ctx, tx, productID, qty)
	switch {
	case errors.Is(err, storage.ErrInsufficientStock):
		l.log.Warn("reservation rejected",
			slog.String("op", op),
			slog.String("productID", productID.String()),
			slog.Int("requested", qty),
			slog.Int("available", stock),
		)
		return stock, &CartError{Kind: ErrInsufficientStock, ProductID: productID, Available: stock}
	case errors.Is(err, storage.ErrProductNotFound):
		return 0, &CartError{Kind: ErrProductNotFound, ProductID: productID}
	case err != nil:
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return stock, nil
}

func (l *inventoryLedger) Restore(ctx context.Context, tx *sql.Tx, productID uuid.UUID, qty int) (int, error) {
	const op = "service.InventoryLedger.Restore"

	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	stock, err := l.productRepo.IncrementStock(ctx, tx, productID, qty)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return 0, &CartError{Kind: ErrProductNotFound, ProductID: productID}
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return stock, nil
}
