package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
)

// PriceTolerance допустимое расхождение цены и итога, 0.01 денежной единицы
var PriceTolerance = decimal.New(1, -2)

// ValidatedCart корзина, проверенная по живому снимку каталога
type ValidatedCart struct {
	Items []models.OrderItem
	Total decimal.Decimal // пересчитан по живым ценам
}

// ValidateCart проверяет корзину по снимку товаров и ничего не меняет.
// Для каждой позиции по порядку: товар существует, цена клиента совпадает
// с живой в пределах допуска, остатка хватает. Затем сверяется итог.
// Успех не гарантирует, что остаток сохранится до резервирования.
func ValidateCart(items []models.CartItem, claimedTotal decimal.Decimal, products map[uuid.UUID]*models.Product) (*ValidatedCart, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	frozen := make([]models.OrderItem, 0, len(items))
	// одна и та же позиция может встретиться в корзине несколько раз
	requested := make(map[uuid.UUID]int, len(items))

	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, &CartError{Kind: ErrProductNotFound, ProductID: item.ProductID, ProductName: item.Name}
		}

		if product.Price.Sub(item.Price).Abs().GreaterThan(PriceTolerance) {
			return nil, &CartError{Kind: ErrPriceMismatch, ProductID: product.ID, ProductName: product.Name}
		}

		requested[product.ID] += item.Quantity
		if product.Stock < requested[product.ID] {
			return nil, &CartError{
				Kind:        ErrInsufficientStock,
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
			}
		}

		image := product.Image
		if image == "" {
			image = item.Image
		}
		line := models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  item.Quantity,
			Image:     image,
		}
		frozen = append(frozen, line)
		total = total.Add(line.Subtotal())
	}

	if total.Sub(claimedTotal).Abs().GreaterThan(PriceTolerance) {
		return nil, ErrTotalMismatch
	}

	return &ValidatedCart{Items: frozen, Total: total}, nil
}
