package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product представляет товар каталога.
// Заказы читают у него только цену и остаток, а меняют только остаток.
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"` // неотрицательная цена
	Stock       int             `json:"stock"` // остаток на складе, никогда не уходит в минус
	Image       string          `json:"image"`
	CreatedBy   *int64          `json:"created_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProductFilter параметры выборки каталога.
// Search ищет подстроку в названии или описании без учёта регистра.
type ProductFilter struct {
	Category string
	Search   string
	Limit    int
	Offset   int
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination pages округляется вверх, для пустого каталога 0
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// ProductPage одна страница каталога
type ProductPage struct {
	Products   []*Product
	Pagination Pagination
}
