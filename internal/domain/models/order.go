package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus статус заказа
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus приводит строку к статусу заказа
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusCompleted, StatusCancelled:
		return st, true
	}
	return "", false
}

// IsTerminal - из завершённого и отменённого статуса переходов нет
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentMethod способ оплаты
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
)

// ParsePaymentMethod пустая строка даёт оплату наличными
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch pm := PaymentMethod(s); pm {
	case "":
		return PaymentCash, true
	case PaymentCash, PaymentCard, PaymentTransfer:
		return pm, true
	}
	return "", false
}

const (
	MinItemQuantity = 1
	MaxItemQuantity = 100
	MaxNotesLength  = 500
)

// CartItem позиция корзины, присланная клиентом. Отдельно не хранится.
type CartItem struct {
	ProductID uuid.UUID
	Name      string
	Price     decimal.Decimal // цена, которую видел клиент
	Quantity  int
	Image     string
}

// OrderItem замороженная копия позиции на момент оформления заказа.
// Ссылка на товар только по идентификатору: товар может быть удалён позже.
type OrderItem struct {
	ProductID uuid.UUID       `json:"product"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

// Subtotal цена позиции, умноженная на количество
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingAddress адрес доставки, все поля обязательны
type ShippingAddress struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order представляет заказ, оформленный из корзины
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          int64           `json:"user_id"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Notes           string          `json:"notes"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderNumber человекочитаемый номер вида ORD-YYMM-XXXXXX, вычисляется при чтении
func (o *Order) OrderNumber() string {
	id := strings.ReplaceAll(o.ID.String(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", o.CreatedAt.Format("0601"), strings.ToUpper(id[len(id)-6:]))
}

// ItemCount сумма количеств по всем позициям
func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return count
}

// IsOwnedBy проверяет, принадлежит ли заказ пользователю
func (o *Order) IsOwnedBy(userID int64) bool {
	return o.UserID == userID
}

// OrderSummary краткое представление заказа
type OrderSummary struct {
	ID          uuid.UUID       `json:"id"`
	OrderNumber string          `json:"order_number"`
	ItemCount   int             `json:"item_count"`
	Total       decimal.Decimal `json:"total"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:          o.ID,
		OrderNumber: o.OrderNumber(),
		ItemCount:   o.ItemCount(),
		Total:       o.Total,
		Status:      o.Status,
		CreatedAt:   o.CreatedAt,
	}
}

// OrderFilter предикат выборки заказов. nil означает "без фильтра".
type OrderFilter struct {
	UserID *int64
	Status *OrderStatus
}

// OrderStats агрегаты по заказам; выручка считается только по завершённым
type OrderStats struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Completed    int             `json:"completed"`
	Cancelled    int             `json:"cancelled"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}
