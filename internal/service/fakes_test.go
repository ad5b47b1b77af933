package service_test

import (
	"cmp"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // ключ: email
	// withOrders пользователи, на которых ссылаются заказы
	withOrders map[int64]bool
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User), withOrders: make(map[int64]bool)}
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.ID = int64(len(f.users) + 1)
	f.users[user.Email] = user
	return user, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			u.Role = role
			return nil
		}
	}
	return storage.ErrUserNotFound
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	// новые первыми, id растут вместе с created_at
	slices.SortFunc(out, func(a, b *models.User) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (f *fakeUserRepo) DeleteUser(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.withOrders[id] {
		return storage.ErrUserHasOrders
	}
	for email, u := range f.users {
		if u.ID == id {
			delete(f.users, email)
			return nil
		}
	}
	return storage.ErrUserNotFound
}

// fakeProductRepo держит остатки в памяти; списание атомарно под мьютексом,
// как условный UPDATE в базе.
type fakeProductRepo struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
	// failDecrement и failIncrement ошибки, которые вернут DecrementStock и IncrementStock для товара
	failDecrement map[uuid.UUID]error
	failIncrement map[uuid.UUID]error
	calls         []string
}

var _ storage.ProductStorage = (*fakeProductRepo)(nil)

func newFakeProductRepo(products ...*models.Product) *fakeProductRepo {
	f := &fakeProductRepo{
		products:      make(map[uuid.UUID]*models.Product),
		failDecrement: make(map[uuid.UUID]error),
		failIncrement: make(map[uuid.UUID]error),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeProductRepo) stock(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].Stock
}

func (f *fakeProductRepo) GetProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) GetProductsByIDsTx(ctx context.Context, tx *sql.Tx, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeProductRepo) ListProducts(ctx context.Context, filter models.ProductFilter) ([]*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "list")
	return f.match(filter), nil
}

func (f *fakeProductRepo) CountProducts(ctx context.Context, filter models.ProductFilter) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.match(filter)), nil
}

func (f *fakeProductRepo) match(filter models.ProductFilter) []*models.Product {
	var out []*models.Product
	for _, p := range f.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (f *fakeProductRepo) UpdateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[product.ID]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	product.CreatedBy, product.CreatedAt = p.CreatedBy, p.CreatedAt
	f.products[product.ID] = product
	return product, nil
}

func (f *fakeProductRepo) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product.ID = uuid.New()
	product.CreatedAt = time.Now()
	f.products[product.ID] = product
	return product, nil
}

func (f *fakeProductRepo) SetStock(ctx context.Context, id uuid.UUID, stock int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, storage.ErrProductNotFound
	}
	p.Stock = stock
	return p, nil
}

func (f *fakeProductRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[id]; !ok {
		return storage.ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

func (f *fakeProductRepo) DecrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "reserve:"+id.String())
	if err := f.failDecrement[id]; err != nil {
		return 0, err
	}
	p, ok := f.products[id]
	if !ok {
		return 0, storage.ErrProductNotFound
	}
	if p.Stock < qty {
		return p.Stock, storage.ErrInsufficientStock
	}
	p.Stock -= qty
	return p.Stock, nil
}

func (f *fakeProductRepo) IncrementStock(ctx context.Context, tx *sql.Tx, id uuid.UUID, qty int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "restore:"+id.String())
	if err := f.failIncrement[id]; err != nil {
		return 0, err
	}
	p, ok := f.products[id]
	if !ok {
		return 0, storage.ErrProductNotFound
	}
	p.Stock += qty
	return p.Stock, nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*models.Order
	createErr error
	lockErr   error
	listErr   error
	filters   []models.OrderFilter
	stats     *models.OrderStats
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*models.Order)}
}

func (f *fakeOrderRepo) put(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = o
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderRepo) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*models.Order, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return f.GetOrderByID(ctx, id)
}

func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status models.OrderStatus) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return time.Time{}, storage.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return o.UpdatedAt, nil
}

func (f *fakeOrderRepo) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Order
	for _, o := range f.orders {
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrderRepo) GetStats(ctx context.Context) (*models.OrderStats, error) {
	if f.stats == nil {
		return &models.OrderStats{}, nil
	}
	return f.stats, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (f *fakeNotifier) NotifyOrder(event models.OrderEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) Events() []models.OrderEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderEvent(nil), f.events...)
}

type fakeMetrics struct {
	mu          sync.Mutex
	created     int
	rejected    []string
	transitions []models.OrderStatus
	compensated int
}

func (f *fakeMetrics) OrderCreated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
}

func (f *fakeMetrics) OrderRejected(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
}

func (f *fakeMetrics) OrderTransitioned(status models.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, status)
}

func (f *fakeMetrics) StockCompensated(items int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compensated += items
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*models.Message
	limits   []int
}

var _ storage.MessageStorage = (*fakeMessageRepo)(nil)

func (f *fakeMessageRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = int64(len(f.messages) + 1)
	msg.CreatedAt = time.Now()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessageRepo) GetRecentMessages(ctx context.Context, room string, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	var out []*models.Message
	for _, m := range f.messages {
		if m.Room == room {
			out = append(out, m)
		}
	}
	return out, nil
}
