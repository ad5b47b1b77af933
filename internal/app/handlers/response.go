package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/order-portal/internal/service"
)

// MutationResponse ответ на изменяющие запросы
type MutationResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Order   *OrderResponse `json:"order,omitempty"`
}

type OrderItemResponse struct {
	Product  uuid.UUID       `json:"product"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type ShippingAddressResponse struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type OrderResponse struct {
	ID              uuid.UUID               `json:"id"`
	OrderNumber     string                  `json:"orderNumber"`
	User            int64                   `json:"user"`
	Items           []OrderItemResponse     `json:"items"`
	ItemCount       int                     `json:"itemCount"`
	Total           decimal.Decimal         `json:"total"`
	Status          models.OrderStatus      `json:"status"`
	ShippingAddress ShippingAddressResponse `json:"shippingAddress"`
	PaymentMethod   models.PaymentMethod    `json:"paymentMethod"`
	Notes           string                  `json:"notes"`
	CreatedAt       time.Time               `json:"createdAt"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func newOrderResponse(o *models.Order) *OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemResponse{
			Product:  item.ProductID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Image:    item.Image,
			Subtotal: item.Subtotal(),
		})
	}
	return &OrderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber(),
		User:        o.UserID,
		Items:       items,
		ItemCount:   o.ItemCount(),
		Total:       o.Total,
		Status:      o.Status,
		ShippingAddress: ShippingAddressResponse{
			Address:    o.ShippingAddress.Address,
			City:       o.ShippingAddress.City,
			PostalCode: o.ShippingAddress.PostalCode,
			Country:    o.ShippingAddress.Country,
		},
		PaymentMethod: o.PaymentMethod,
		Notes:         o.Notes,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func newOrderListResponse(orders []*models.Order) []*OrderResponse {
	out := make([]*OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}

type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func newProductResponse(p *models.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Stock:       p.Stock,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
	}
}

// UserResponse пользователь без хэша пароля
type UserResponse struct {
	ID        int64       `json:"id"`
	Username  string      `json:"username"`
	Role      models.Role `json:"role"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}

func newUserResponse(u *models.User) *UserResponse {
	resp := &UserResponse{ID: u.ID, Username: u.Email, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		createdAt := u.CreatedAt
		resp.CreatedAt = &createdAt
	}
	return resp
}

type StatsResponse struct {
	Total        int             `json:"total"`
	Pending      int             `json:"pending"`
	Completed    int             `json:"completed"`
	Cancelled    int             `json:"cancelled"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError бизнес-отказы уходят клиенту как есть, сбои инфраструктуры - общим сообщением
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := errorStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
		message = "internal server error"
	} else {
		logger.Warn("request rejected", slog.Any("error", err))
	}
	writeJSON(w, logger, status, MutationResponse{Success: false, Message: message})
}

func errorStatus(err error) int {
	var cartErr *service.CartError
	switch {
	case errors.As(err, &cartErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrProductNotFound),
		errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrConcurrentUpdate),
		errors.Is(err, service.ErrUserHasOrders):
		return http.StatusConflict
	case service.IsBusinessError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func principalFrom(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (models.Principal, bool) {
	principal, ok := jwtmiddleware.PrincipalFromContext(r.Context())
	if !ok {
		logger.Error("userID not found in context")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	return principal, ok
}
