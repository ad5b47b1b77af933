package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Бизнес-ошибки ядра заказов. Ошибки хранилища сюда не входят и
// возвращаются обёрнутыми с указанием операции.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductNotFound   = errors.New("product not found")
	ErrPriceMismatch     = errors.New("product price has changed, please refresh the cart")
	ErrTotalMismatch     = errors.New("order total does not match the items")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserHasOrders     = errors.New("user has orders and cannot be deleted")
)

// ErrConcurrentUpdate заказ сейчас меняет другой запрос, можно повторить
var ErrConcurrentUpdate = errors.New("order is being updated, please try again")

var businessErrors = []error{
	ErrEmptyCart,
	ErrProductNotFound,
	ErrPriceMismatch,
	ErrTotalMismatch,
	ErrInsufficientStock,
	ErrOrderNotFound,
	ErrForbidden,
	ErrInvalidTransition,
	ErrInvalidInput,
	ErrUserNotFound,
	ErrUserHasOrders,
}

// IsBusinessError отличает отказ по бизнес-правилу от сбоя инфраструктуры.
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CartError отказ по конкретной позиции корзины. Unwrap возвращает вид ошибки.
type CartError struct {
	Kind        error
	ProductID   uuid.UUID
	ProductName string
	Available   int
}

func (e *CartError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID.String()
	}
	switch e.Kind {
	case ErrInsufficientStock:
		return fmt.Sprintf("insufficient stock for %q, available: %d", name, e.Available)
	case ErrProductNotFound:
		return fmt.Sprintf("product %q not found", name)
	case ErrPriceMismatch:
		return fmt.Sprintf("price of %q has changed, please refresh the cart", name)
	}
	return fmt.Sprintf("%s: %s", e.Kind, name)
}

func (e *CartError) Unwrap() error {
	return e.Kind
}

// rejectionReason метка для метрик отказов
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrPriceMismatch):
		return "price_mismatch"
	case errors.Is(err, ErrTotalMismatch):
		return "total_mismatch"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	}
	return "internal"
}
