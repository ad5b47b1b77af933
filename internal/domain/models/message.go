package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Message сообщение чата
type Message struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"user"`
	Body      string    `json:"message"`
	Room      string    `json:"room"`
	CreatedAt time.Time `json:"timestamp"`
}

const DefaultRoom = "general"

// OrderEventType тип факта о заказе, публикуемого в чат
type OrderEventType string

const (
	OrderCreated   OrderEventType = "order.created"
	OrderCompleted OrderEventType = "order.completed"
	OrderCancelled OrderEventType = "order.cancelled"
)

// OrderEvent зафиксированный факт о заказе
type OrderEvent struct {
	Type        OrderEventType  `json:"type"`
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
	At          time.Time       `json:"at"`
}

// NewOrderEvent собирает событие из уже сохранённого заказа
func NewOrderEvent(t OrderEventType, o *Order) OrderEvent {
	return OrderEvent{
		Type:        t,
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber(),
		UserID:      o.UserID,
		Total:       o.Total,
		ItemCount:   o.ItemCount(),
		At:          o.UpdatedAt,
	}
}
