package app

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/linemk/order-portal/internal/app/handlers"
	"github.com/linemk/order-portal/internal/chat"
	"github.com/linemk/order-portal/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/order-portal/internal/lib/logger/handlers/urllog"
	"github.com/linemk/order-portal/internal/lib/metrics"
	"github.com/linemk/order-portal/internal/service"
	"github.com/linemk/order-portal/internal/storage"
)

// Services сервисы, которые видит транспорт
type Services struct {
	Auth     *service.AuthService
	Orders   service.OrderService
	Queries  service.OrderQueryService
	Products service.ProductService
	Users    service.UserService
	Chat     service.ChatService
}

// NewServices собирает репозитории и сервисы поверх одного *sql.DB
func NewServices(log *slog.Logger, db *sql.DB, cfg ServiceConfig, notifier service.OrderNotifier, m *metrics.Metrics) Services {
	userRepo := storage.NewUserRepository(db)
	productRepo := storage.NewProductRepository(db)
	orderRepo := storage.NewOrderRepository(db)
	messageRepo := storage.NewMessageRepository(db)

	ledger := service.NewInventoryLedger(log, productRepo)

	return Services{
		Auth:     service.NewAuthService(log, userRepo, cfg.TokenTTL, cfg.JWTSecret),
		Orders:   service.NewOrderService(log, db, productRepo, orderRepo, ledger, notifier, m),
		Queries:  service.NewOrderQueryService(log, orderRepo),
		Products: service.NewProductService(log, productRepo),
		Users:    service.NewUserService(log, userRepo),
		Chat:     service.NewChatService(log, userRepo, messageRepo, cfg.ChatHistoryLimit),
	}
}

type ServiceConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	ChatHistoryLimit int
}

// NewRouter маршруты REST, websocket чата и метрик
func NewRouter(log *slog.Logger, jwtSecret string, svc Services, hub *chat.Hub, m *metrics.Metrics) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Post("/api/auth", handlers.AuthHandler(log, svc.Auth))
	router.Get("/api/products", handlers.ListProductsHandler(log, svc.Products))
	router.Get("/api/products/{id}", handlers.GetProductHandler(log, svc.Products))

	router.Get("/ws/chat", chat.ServeWS(log, hub, svc.Chat, jwtSecret))
	router.Handle("/metrics", m.Handler())

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.NewJWTMiddleware(jwtSecret))

		r.Post("/api/orders", handlers.CreateOrderHandler(log, svc.Orders))
		r.Get("/api/orders", handlers.ListOrdersHandler(log, svc.Queries))
		r.Get("/api/orders/my", handlers.MyOrdersHandler(log, svc.Queries))
		r.Get("/api/orders/{id}", handlers.GetOrderHandler(log, svc.Queries))
		r.Post("/api/orders/{id}/cancel", handlers.CancelOrderHandler(log, svc.Orders))
		r.Post("/api/orders/{id}/complete", handlers.CompleteOrderHandler(log, svc.Orders))
		r.Patch("/api/orders/{id}/status", handlers.UpdateOrderStatusHandler(log, svc.Orders))

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(jwtmiddleware.RequireAdmin)
			r.Get("/stats", handlers.StatsHandler(log, svc.Queries))
			r.Post("/products", handlers.CreateProductHandler(log, svc.Products))
			r.Put("/products/{id}", handlers.UpdateProductHandler(log, svc.Products))
			r.Put("/products/{id}/stock", handlers.SetStockHandler(log, svc.Products))
			r.Delete("/products/{id}", handlers.DeleteProductHandler(log, svc.Products))

			r.Get("/users", handlers.ListUsersHandler(log, svc.Users))
			r.Get("/users/{id}", handlers.GetUserHandler(log, svc.Users))
			r.Put("/users/{id}/role", handlers.UpdateUserRoleHandler(log, svc.Users))
			r.Delete("/users/{id}", handlers.DeleteUserHandler(log, svc.Users))
		})
	})

	return router
}
