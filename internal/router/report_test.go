package router

import (
	"net/http"
	"testing"
	"time"

	"biz_manager/internal/service"
	rediskey "biz_manager/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stockJSON struct {
	ProductID uint   `json:"product_id"`
	Stock     int64  `json:"stock"`
	Source    string `json:"source"`
}

func TestStockEndpointWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	defer rdb.Close()
	r := newTestServer(t, service.WithStockCache(rediskey.NewStockCache(rdb, time.Hour)))

	code, env := do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Widget", "price": "5", "initial_stock": 10})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	product := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)
	stockPath := "/api/products/" + itoa(product.ID) + "/stock"

	code, env = do(t, r, http.MethodPost, "/api/customers", gin.H{"name": "Acme"})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	customer := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)
	code, env = do(t, r, http.MethodPost, "/api/orders", gin.H{"customer_id": customer.ID, "product_id": product.ID, "quantity": 4})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	order := decode[orderJSON](t, env.Data)

	code, env = do(t, r, http.MethodGet, stockPath, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, stockJSON{ProductID: product.ID, Stock: 10, Source: "db"}, decode[stockJSON](t, env.Data))

	// 缓存过期后完成订单，再用完成前读到的值回填
	mr.Del(rediskey.StockKey(product.ID))
	code, env = do(t, r, http.MethodPut, "/api/orders/"+itoa(order.ID)+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, code, env.Msg)
	cache := rediskey.NewStockCache(rdb, time.Hour)
	stored, err := cache.SetStock(t.Context(), product.ID, 10, 1)
	require.NoError(t, err)
	assert.False(t, stored)

	code, env = do(t, r, http.MethodGet, stockPath, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, stockJSON{ProductID: product.ID, Stock: 6, Source: "db"}, decode[stockJSON](t, env.Data))
	code, env = do(t, r, http.MethodGet, stockPath, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, stockJSON{ProductID: product.ID, Stock: 6, Source: "cache"}, decode[stockJSON](t, env.Data))

	code, env = do(t, r, http.MethodPost, stockPath+"/warm", nil, "X-Admin-Token", testAdminToken)
	require.Equal(t, http.StatusOK, code, env.Msg)
	assert.EqualValues(t, 6, decode[stockJSON](t, env.Data).Stock)

	code, _ = do(t, r, http.MethodDelete, "/api/products/"+itoa(product.ID), nil)
	require.Equal(t, http.StatusOK, code)
	code, env = do(t, r, http.MethodGet, stockPath, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, kindNotFound, env.Kind)
}

func TestDuplicateSKUIsConflict(t *testing.T) {
	r := newTestServer(t)
	code, env := do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Hoe", "sku": "HOE-1"})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	code, env = do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Hoe again", "sku": "HOE-1"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, kindConflict, env.Kind)
}

func TestCustomerDetailAndReports(t *testing.T) {
	r := newTestServer(t)
	code, env := do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Widget", "price": "5", "stock": 10})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	product := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)
	code, env = do(t, r, http.MethodPost, "/api/customers", gin.H{"name": "Acme"})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	customer := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)

	for _, o := range []gin.H{
		{"customer_id": customer.ID, "product_id": product.ID, "quantity": 2, "status": "completed", "date": "2025-01-10"},
		{"customer_id": customer.ID, "product_id": product.ID, "quantity": 1, "date": "2025-04-02"},
	} {
		code, env = do(t, r, http.MethodPost, "/api/orders", o)
		require.Equal(t, http.StatusCreated, code, env.Msg)
	}

	code, env = do(t, r, http.MethodGet, "/api/customers/"+itoa(customer.ID), nil)
	require.Equal(t, http.StatusOK, code, env.Msg)
	detail := decode[struct {
		Name       string      `json:"name"`
		OrderCount int         `json:"order_count"`
		TotalSpent string      `json:"total_spent"`
		Orders     []orderJSON `json:"orders"`
	}](t, env.Data)
	assert.Equal(t, "Acme", detail.Name)
	assert.Equal(t, 2, detail.OrderCount)
	require.Len(t, detail.Orders, 2)
	assert.Equal(t, "processing", detail.Orders[0].Status)
	assert.Equal(t, "completed", detail.Orders[1].Status)
	assert.Equal(t, "10", detail.TotalSpent)

	code, env = do(t, r, http.MethodGet, "/api/customers/999", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = do(t, r, http.MethodGet, "/api/reports/summary", nil)
	require.Equal(t, http.StatusOK, code, env.Msg)
	overview := decode[service.StockOverview](t, env.Data)
	assert.EqualValues(t, 1, overview.Products)
	assert.EqualValues(t, 1, overview.Customers)
	assert.EqualValues(t, 2, overview.Orders)
	assert.EqualValues(t, 8, overview.TotalStock)
	require.Len(t, overview.TopProducts, 1)
	assert.Equal(t, "Widget", overview.TopProducts[0].Name)

	code, env = do(t, r, http.MethodGet, "/api/reports/revenue", nil)
	require.Equal(t, http.StatusOK, code)
	revenue := decode[struct {
		Total string `json:"total_revenue"`
	}](t, env.Data)
	assert.Equal(t, "10", revenue.Total)
}
