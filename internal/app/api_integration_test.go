//go:build integration

package app_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/linemk/order-portal/internal/app"
	"github.com/linemk/order-portal/internal/app/handlers"
	"github.com/linemk/order-portal/internal/chat"
	"github.com/linemk/order-portal/internal/lib/metrics"
)

const jwtSecret = "integration-secret"

type apiClient struct {
	t       *testing.T
	baseURL string
}

func (c apiClient) do(method, path, token string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c apiClient) login(username, password string) string {
	c.t.Helper()
	var resp handlers.AuthResponse
	status := c.do(http.MethodPost, "/api/auth", "", handlers.AuthRequest{Username: username, Password: password}, &resp)
	require.Equal(c.t, http.StatusOK, status, "Expected 200 OK for valid auth")
	require.NotEmpty(c.t, resp.Token, "Token should not be empty")
	return resp.Token
}

func startServer(t *testing.T) (apiClient, *metrics.Metrics) {
	t.Helper()
	ctx := t.Context()

	container, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.BasicWaitStrategies(),
		postgres.WithInitScripts("../../migrations/000001_init.up.sql"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	m := metrics.New()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := chat.NewHub(log, nil, m, 16)
	go hub.Run(hubCtx)
	t.Cleanup(stopHub)

	svc := app.NewServices(log, db, app.ServiceConfig{JWTSecret: jwtSecret, TokenTTL: time.Hour}, hub, m)
	require.NoError(t, svc.Auth.EnsureAdmin(ctx, "admin@example.com", "adminpass123"))

	server := httptest.NewServer(app.NewRouter(log, jwtSecret, svc, hub, m))
	t.Cleanup(server.Close)

	return apiClient{t: t, baseURL: server.URL}, m
}

// сценарий: админ заводит товар, пользователь заказывает его и отменяет заказ
func TestOrderFlow(t *testing.T) {
	client, _ := startServer(t)

	adminToken := client.login("admin@example.com", "adminpass123")
	userToken := client.login("buyer@example.com", "buyerpass123")

	// обычный пользователь не может заводить товары
	status := client.do(http.MethodPost, "/api/admin/products", userToken,
		map[string]any{"name": "Mug", "price": "10.00", "stock": 2}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var product handlers.ProductResponse
	status = client.do(http.MethodPost, "/api/admin/products", adminToken,
		map[string]any{"name": "Mug", "category": "kitchen", "price": "10.00", "stock": 2}, &product)
	require.Equal(t, http.StatusCreated, status)

	order := map[string]any{
		"items": []map[string]any{{"product": product.ID.String(), "name": "Mug", "price": "10.00", "quantity": 2}},
		"total": "20.00",
		"shippingAddress": map[string]any{
			"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US",
		},
		"paymentMethod": "card",
	}

	var created handlers.MutationResponse
	status = client.do(http.MethodPost, "/api/orders", userToken, order, &created)
	require.Equal(t, http.StatusCreated, status)
	require.True(t, created.Success)
	require.NotNil(t, created.Order)
	assert.True(t, strings.HasPrefix(created.Order.OrderNumber, "ORD-"))
	assert.Equal(t, 2, created.Order.ItemCount)

	var live handlers.ProductResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/products/"+product.ID.String(), "", nil, &live))
	assert.Equal(t, 0, live.Stock)

	// остатка больше нет
	var rejected handlers.MutationResponse
	status = client.do(http.MethodPost, "/api/orders", userToken, order, &rejected)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, rejected.Success)
	assert.Contains(t, rejected.Message, "insufficient stock")

	var mine []handlers.OrderResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/orders/my", userToken, nil, &mine))
	require.Len(t, mine, 1)

	orderPath := "/api/orders/" + created.Order.ID.String()
	assert.Equal(t, http.StatusForbidden, client.do(http.MethodPost, orderPath+"/complete", userToken, nil, nil))

	var cancelled handlers.MutationResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodPost, orderPath+"/cancel", userToken, nil, &cancelled))
	assert.Equal(t, "cancelled", string(cancelled.Order.Status))

	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/products/"+product.ID.String(), "", nil, &live))
	assert.Equal(t, 2, live.Stock)

	assert.Equal(t, http.StatusConflict, client.do(http.MethodPost, orderPath+"/cancel", userToken, nil, nil))

	assert.Equal(t, http.StatusForbidden, client.do(http.MethodGet, "/api/admin/stats", userToken, nil, nil))
	var stats handlers.StatsResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/admin/stats", adminToken, nil, &stats))
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Cancelled)
	assert.True(t, stats.TotalRevenue.IsZero())
}

// сценарий с безуспешной аутентификацией пользователя
func TestAuthInvalid(t *testing.T) {
	client, _ := startServer(t)

	client.login("buyer@example.com", "buyerpass123")
	status := client.do(http.MethodPost, "/api/auth", "",
		handlers.AuthRequest{Username: "buyer@example.com", Password: "wrongpass123"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Equal(t, http.StatusUnauthorized, client.do(http.MethodGet, "/api/orders/my", "", nil, nil))
}

func TestMetricsEndpoint(t *testing.T) {
	client, _ := startServer(t)

	resp, err := http.Get(client.baseURL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "portal_orders_created_total 0")
}

// сценарий: админ правит каталог и управляет пользователями
func TestAdminCatalogAndUsers(t *testing.T) {
	client, _ := startServer(t)

	adminToken := client.login("admin@example.com", "adminpass123")
	buyerToken := client.login("buyer@example.com", "buyerpass123")
	client.login("idle@example.com", "idlepass1234")

	for _, name := range []string{"Red mug", "Blue mug", "Teapot"} {
		require.Equal(t, http.StatusCreated, client.do(http.MethodPost, "/api/admin/products", adminToken,
			map[string]any{"name": name, "category": "kitchen", "price": "5.00", "stock": 1}, nil))
	}

	var page handlers.ProductListResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/products?search=MUG&limit=1", "", nil, &page))
	require.Len(t, page.Products, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Pages)

	var updated handlers.ProductResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodPut, "/api/admin/products/"+page.Products[0].ID.String(), adminToken,
		map[string]any{"name": "Green mug", "category": "kitchen", "price": "6.50", "stock": 4}, &updated))
	assert.Equal(t, "Green mug", updated.Name)
	assert.Equal(t, 4, updated.Stock)

	order := map[string]any{
		"items": []map[string]any{{"product": updated.ID.String(), "name": "Green mug", "price": "6.50", "quantity": 1}},
		"total": "6.50",
		"shippingAddress": map[string]any{
			"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US",
		},
	}
	require.Equal(t, http.StatusCreated, client.do(http.MethodPost, "/api/orders", buyerToken, order, nil))

	assert.Equal(t, http.StatusForbidden, client.do(http.MethodGet, "/api/admin/users", buyerToken, nil, nil))

	var list handlers.UserListResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodGet, "/api/admin/users", adminToken, nil, &list))
	require.Len(t, list.Users, 3)
	ids := make(map[string]int64, len(list.Users))
	for _, u := range list.Users {
		ids[u.Username] = u.ID
	}

	userPath := func(name string) string { return fmt.Sprintf("/api/admin/users/%d", ids[name]) }

	assert.Equal(t, http.StatusBadRequest, client.do(http.MethodPut, userPath("idle@example.com")+"/role", adminToken,
		map[string]string{"role": "root"}, nil))
	var promoted handlers.UserMutationResponse
	require.Equal(t, http.StatusOK, client.do(http.MethodPut, userPath("idle@example.com")+"/role", adminToken,
		map[string]string{"role": "admin"}, &promoted))
	assert.Equal(t, "admin", string(promoted.User.Role))

	assert.Equal(t, http.StatusBadRequest, client.do(http.MethodDelete, userPath("admin@example.com"), adminToken, nil, nil))
	assert.Equal(t, http.StatusConflict, client.do(http.MethodDelete, userPath("buyer@example.com"), adminToken, nil, nil))
	assert.Equal(t, http.StatusOK, client.do(http.MethodDelete, userPath("idle@example.com"), adminToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, client.do(http.MethodDelete, userPath("idle@example.com"), adminToken, nil, nil))
}
