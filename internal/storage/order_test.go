package storage_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linemk/order-portal/internal/domain/models"
	"github.com/linemk/order-portal/internal/storage"
)

var (
	orderCols = []string{"id", "user_id", "total", "status", "address", "city", "postal_code", "country",
		"payment_method", "notes", "created_at", "updated_at"}
	itemCols = []string{"order_id", "product_id", "name", "price", "quantity", "image"}
)

const (
	selectOrders = "SELECT id, user_id, total, status, address, city, postal_code, country, payment_method, notes, created_at, updated_at FROM orders"
	selectItems  = "SELECT order_id, product_id, name, price, quantity, image FROM order_items WHERE order_id = ANY($1::uuid[]) ORDER BY order_id, position"
)

func orderRow(rows *sqlmock.Rows, id uuid.UUID, userID int64, total string, status models.OrderStatus) *sqlmock.Rows {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return rows.AddRow(id.String(), userID, total, string(status), "1 Main St", "Springfield", "12345", "US", "card", "", ts, ts)
}

func TestCreateOrder_WithItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	p1, p2 := uuid.New(), uuid.New()
	order := &models.Order{
		ID:     uuid.New(),
		UserID: 7,
		Items: []models.OrderItem{
			{ProductID: p1, Name: "Mug", Price: decimal.RequireFromString("4.50"), Quantity: 2},
			{ProductID: p2, Name: "Tea", Price: decimal.RequireFromString("3.00"), Quantity: 1, Image: "tea.png"},
		},
		Total:           decimal.RequireFromString("12.00"),
		Status:          models.StatusPending,
		ShippingAddress: models.ShippingAddress{Address: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   models.PaymentCash,
	}
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WithArgs(order.ID, int64(7), order.Total, models.StatusPending, "1 Main St", "Springfield", "12345", "US", models.PaymentCash, "").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	// позиции пишутся по порядку, position = индекс в корзине
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(order.ID, 0, p1, "Mug", order.Items[0].Price, 2, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WithArgs(order.ID, 1, p2, "Tea", order.Items[1].Price, 1, "tea.png").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.CreateOrder(context.Background(), tx, order))
	require.NoError(t, tx.Commit())

	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, now, order.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_ItemFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	order := &models.Order{
		ID:     uuid.New(),
		UserID: 7,
		Items:  []models.OrderItem{{ProductID: uuid.New(), Name: "Mug", Price: decimal.NewFromInt(1), Quantity: 1}},
		Status: models.StatusPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_items")).
		WillReturnError(errors.New("fk violation"))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.CreateOrder(context.Background(), tx, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create order item")
	require.NoError(t, tx.Rollback())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_AttachesItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	id := uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(selectOrders + " WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(orderRow(sqlmock.NewRows(orderCols), id, 7, "12.00", models.StatusPending))
	mock.ExpectQuery(regexp.QuoteMeta(selectItems)).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(itemCols).
			AddRow(id.String(), p1.String(), "Mug", "4.50", 2, "").
			AddRow(id.String(), p2.String(), "Tea", "3.00", 1, "tea.png"))

	order, err := repo.GetOrderByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(7), order.UserID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, models.PaymentCard, order.PaymentMethod)
	assert.Equal(t, "Springfield", order.ShippingAddress.City)
	require.Len(t, order.Items, 2)
	assert.Equal(t, p1, order.Items[0].ProductID)
	assert.Equal(t, "tea.png", order.Items[1].Image)
	assert.Equal(t, 3, order.ItemCount())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(selectOrders + " WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(orderCols))

	order, err := storage.NewOrderRepository(db).GetOrderByID(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
	assert.Nil(t, order)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockOrderByIDTx(t *testing.T) {
	id := uuid.New()
	lockQuery := regexp.QuoteMeta(selectOrders + " WHERE id = $1 FOR UPDATE NOWAIT")

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "locked",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(lockQuery).WithArgs(id).
					WillReturnError(&pq.Error{Code: "55P03", Message: "could not obtain lock on row"})
			},
			wantErr: storage.ErrOrderLocked,
		},
		{
			name: "not found",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(lockQuery).WithArgs(id).WillReturnRows(sqlmock.NewRows(orderCols))
			},
			wantErr: storage.ErrOrderNotFound,
		},
		{
			name: "ok",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(lockQuery).WithArgs(id).
					WillReturnRows(orderRow(sqlmock.NewRows(orderCols), id, 7, "4.50", models.StatusPending))
				mock.ExpectQuery(regexp.QuoteMeta(selectItems)).WithArgs(sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows(itemCols).AddRow(id.String(), uuid.NewString(), "Mug", "4.50", 1, ""))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectBegin()
			tt.setup(mock)
			mock.ExpectRollback()

			tx, err := db.Begin()
			require.NoError(t, err)

			order, err := storage.NewOrderRepository(db).LockOrderByIDTx(context.Background(), tx, id)
			require.NoError(t, tx.Rollback())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, order)
			} else {
				require.NoError(t, err)
				assert.Len(t, order.Items, 1)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := storage.NewOrderRepository(db)
	id := uuid.New()
	now := time.Now()
	query := regexp.QuoteMeta("UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at")

	mock.ExpectBegin()
	mock.ExpectQuery(query).WithArgs(models.StatusCancelled, id).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery(query).WithArgs(models.StatusCompleted, id).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	updatedAt, err := repo.UpdateOrderStatus(context.Background(), tx, id, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, now, updatedAt)

	_, err = repo.UpdateOrderStatus(context.Background(), tx, id, models.StatusCompleted)
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)

	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrders_Filters(t *testing.T) {
	userID := int64(7)
	status := models.StatusPending

	tests := []struct {
		name   string
		filter models.OrderFilter
		query  string
		args   []driver.Value
	}{
		{
			name:  "no filter",
			query: selectOrders + " ORDER BY created_at DESC",
		},
		{
			name:   "by user",
			filter: models.OrderFilter{UserID: &userID},
			query:  selectOrders + " WHERE user_id = $1 ORDER BY created_at DESC",
			args:   []driver.Value{userID},
		},
		{
			name:   "by status",
			filter: models.OrderFilter{Status: &status},
			query:  selectOrders + " WHERE status = $1 ORDER BY created_at DESC",
			args:   []driver.Value{status},
		},
		{
			name:   "by user and status",
			filter: models.OrderFilter{UserID: &userID, Status: &status},
			query:  selectOrders + " WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC",
			args:   []driver.Value{userID, status},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			defer db.Close()

			a, b := uuid.New(), uuid.New()
			expect := mock.ExpectQuery(tt.query)
			if len(tt.args) > 0 {
				expect = expect.WithArgs(tt.args...)
			}
			rows := sqlmock.NewRows(orderCols)
			orderRow(rows, a, userID, "1.00", models.StatusPending)
			orderRow(rows, b, userID, "2.00", models.StatusPending)
			expect.WillReturnRows(rows)

			mock.ExpectQuery(selectItems).
				WithArgs(sqlmock.AnyArg()).
				WillReturnRows(sqlmock.NewRows(itemCols).
					AddRow(b.String(), uuid.NewString(), "Tea", "2.00", 1, "").
					AddRow(a.String(), uuid.NewString(), "Mug", "1.00", 1, ""))

			orders, err := storage.NewOrderRepository(db).ListOrders(context.Background(), tt.filter)
			require.NoError(t, err)
			require.Len(t, orders, 2)
			assert.Equal(t, a, orders[0].ID)
			assert.Equal(t, "Mug", orders[0].Items[0].Name)
			assert.Equal(t, "Tea", orders[1].Items[0].Name)

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListOrders_EmptySkipsItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(selectOrders + " ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(orderCols))

	orders, err := storage.NewOrderRepository(db).ListOrders(context.Background(), models.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	// запрос позиций не выполняется
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\),.*FROM orders`).
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "completed", "cancelled", "revenue"}).
			AddRow(5, 2, 2, 1, "150.25"))

	stats, err := storage.NewOrderRepository(db).GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.True(t, stats.TotalRevenue.Equal(decimal.RequireFromString("150.25")))

	mock.ExpectQuery(`SELECT COUNT\(\*\),.*FROM orders`).WillReturnError(errors.New("boom"))
	_, err = storage.NewOrderRepository(db).GetStats(context.Background())
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}
