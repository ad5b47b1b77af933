package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/service"
)

type CartItemRequest struct {
	Product  string          `json:"product" validate:"required,uuid"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity" validate:"min=1,max=100"`
	Image    string          `json:"image"`
}

type ShippingAddressRequest struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// CreateOrderRequest пустой список позиций пропускается дальше, его отклоняет ядро
type CreateOrderRequest struct {
	Items           []CartItemRequest      `json:"items" validate:"dive"`
	Total           decimal.Decimal        `json:"total"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer"`
	Notes           string                 `json:"notes" validate:"max=500"`
}

func (req CreateOrderRequest) toInput() (service.CreateOrderInput, error) {
	items := make([]models.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		id, err := uuid.Parse(item.Product)
		if err != nil {
			return service.CreateOrderInput{}, fmt.Errorf("%w: invalid product id", service.ErrInvalidInput)
		}
		items = append(items, models.CartItem{
			ProductID: id,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return service.CreateOrderInput{
		Items: items,
		Total: req.Total,
		ShippingAddress: models.ShippingAddress{
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
	}, nil
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// CreateOrderHandler обрабатывает POST /api/orders
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "validation error"})
			return
		}

		input, err := req.toInput()
		if err != nil {
			writeError(w, logger, err)
			return
		}

		order, err := orderService.CreateOrder(r.Context(), principal.UserID, input)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusCreated, MutationResponse{
			Success: true,
			Message: "Order created successfully",
			Order:   newOrderResponse(order),
		})
	}
}

// ListOrdersHandler обрабатывает GET /api/orders?status=&user=
func ListOrdersHandler(log *slog.Logger, queryService service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		query := service.ListOrdersQuery{Status: r.URL.Query().Get("status")}
		if raw := r.URL.Query().Get("user"); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid user filter"})
				return
			}
			query.UserID = &userID
		}

		orders, err := queryService.ListOrders(r.Context(), principal, query)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newOrderListResponse(orders))
	}
}

// MyOrdersHandler обрабатывает GET /api/orders/my
func MyOrdersHandler(log *slog.Logger, queryService service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MyOrdersHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		userID := principal.UserID
		orders, err := queryService.ListOrders(r.Context(), principal, service.ListOrdersQuery{
			UserID: &userID,
			Status: r.URL.Query().Get("status"),
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newOrderListResponse(orders))
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, queryService service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}

		order, err := queryService.GetOrder(r.Context(), principal, orderID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, newOrderResponse(order))
	}
}

// CancelOrderHandler обрабатывает POST /api/orders/{id}/cancel
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return transitionHandler(log, "handlers.CancelOrderHandler", orderService, func(r *http.Request) (models.OrderStatus, bool) {
		return models.StatusCancelled, true
	})
}

// CompleteOrderHandler обрабатывает POST /api/orders/{id}/complete
func CompleteOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return transitionHandler(log, "handlers.CompleteOrderHandler", orderService, func(r *http.Request) (models.OrderStatus, bool) {
		return models.StatusCompleted, true
	})
}

// UpdateOrderStatusHandler обрабатывает PATCH /api/orders/{id}/status.
// Допустимость целевого статуса проверяет ядро.
func UpdateOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return transitionHandler(log, "handlers.UpdateOrderStatusHandler", orderService, func(r *http.Request) (models.OrderStatus, bool) {
		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", false
		}
		if err := validate.Struct(req); err != nil {
			return "", false
		}
		return models.OrderStatus(req.Status), true
	})
}

func transitionHandler(log *slog.Logger, op string, orderService service.OrderService, target func(r *http.Request) (models.OrderStatus, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}
		orderID, ok := uuidParam(w, r, logger)
		if !ok {
			return
		}
		status, ok := target(r)
		if !ok {
			writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid request"})
			return
		}

		order, err := orderService.Transition(r.Context(), principal, orderID, status)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		writeJSON(w, logger, http.StatusOK, MutationResponse{
			Success: true,
			Message: fmt.Sprintf("Order %s", order.Status),
			Order:   newOrderResponse(order),
		})
	}
}

// StatsHandler обрабатывает GET /api/admin/stats
func StatsHandler(log *slog.Logger, queryService service.OrderQueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.StatsHandler"
		logger := log.With(slog.String("op", op))

		principal, ok := principalFrom(w, r, logger)
		if !ok {
			return
		}

		stats, err := queryService.GetStats(r.Context(), principal)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, StatsResponse{
			Total:        stats.Total,
			Pending:      stats.Pending,
			Completed:    stats.Completed,
			Cancelled:    stats.Cancelled,
			TotalRevenue: stats.TotalRevenue,
		})
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		logger.Warn("invalid id parameter", slog.String("id", chi.URLParam(r, "id")))
		writeJSON(w, logger, http.StatusBadRequest, MutationResponse{Message: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
