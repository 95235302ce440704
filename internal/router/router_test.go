package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"biz_manager/internal/config"
	"biz_manager/internal/db"
	"biz_manager/internal/service"
	"biz_manager/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testAdminToken = "test-admin"

type envelope struct {
	Code   int               `json:"code"`
	Msg    string            `json:"msg"`
	Kind   string            `json:"kind"`
	Fields map[string]string `json:"fields"`
	Data   json.RawMessage   `json:"data"`
}

func newTestServer(t *testing.T, opts ...service.Option) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	gdb, err := gorm.Open(sqlite.Open("file:router_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	l := logrus.New()
	l.SetOutput(io.Discard)
	svc := service.New(gdb, l, opts...)
	return New(Deps{
		Svc:        svc,
		Reconciler: worker.NewReconciler(svc, nil, nil, l),
		Logger:     l,
		Cfg:        config.AppConfig{AdminToken: testAdminToken},
	})
}

func do(t *testing.T, r *gin.Engine, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type orderJSON struct {
	ID             uint   `json:"id"`
	Status         string `json:"status"`
	CustomerName   string `json:"customer_name"`
	ProductName    string `json:"product_name"`
	RemainingStock *int64 `json:"remaining_stock"`
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	r := newTestServer(t)

	code, env := do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Widget", "price": "5", "stock": 10})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	product := decode[struct {
		ID    uint  `json:"id"`
		Stock int64 `json:"stock"`
	}](t, env.Data)
	assert.EqualValues(t, 10, product.Stock)

	code, env = do(t, r, http.MethodPost, "/api/customers", gin.H{"name": "Acme"})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	customer := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)

	code, env = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"customer_id": customer.ID, "product_id": product.ID, "quantity": 4, "date": "2025-03-01",
	})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	order := decode[orderJSON](t, env.Data)
	assert.Equal(t, "processing", order.Status)
	require.NotNil(t, order.RemainingStock)
	assert.EqualValues(t, 10, *order.RemainingStock)

	statusPath := "/api/orders/" + itoa(order.ID) + "/status"
	code, env = do(t, r, http.MethodPut, statusPath, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, code, env.Msg)
	order = decode[orderJSON](t, env.Data)
	assert.Equal(t, "completed", order.Status)
	assert.Equal(t, "Acme", order.CustomerName)
	assert.EqualValues(t, 6, *order.RemainingStock)

	code, env = do(t, r, http.MethodPut, statusPath+"?status="+url.QueryEscape("Đã hủy"), nil)
	require.Equal(t, http.StatusOK, code, env.Msg)
	order = decode[orderJSON](t, env.Data)
	assert.Equal(t, "cancelled", order.Status)
	assert.EqualValues(t, 10, *order.RemainingStock)

	code, env = do(t, r, http.MethodPut, statusPath, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, kindValidation, env.Kind)

	code, env = do(t, r, http.MethodPost, "/api/orders", gin.H{
		"customer_id": customer.ID, "product_id": product.ID, "quantity": 20, "status": "completed",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, kindInsufficientStock, env.Kind)

	code, env = do(t, r, http.MethodGet, "/api/products/"+itoa(product.ID)+"/stock", nil)
	require.Equal(t, http.StatusOK, code)
	stock := decode[struct {
		Stock  int64  `json:"stock"`
		Source string `json:"source"`
	}](t, env.Data)
	assert.EqualValues(t, 10, stock.Stock)
	assert.Equal(t, "db", stock.Source)

	code, env = do(t, r, http.MethodGet, "/api/products/"+itoa(product.ID)+"/ledger", nil)
	require.Equal(t, http.StatusOK, code)
	entries := decode[[]struct {
		Quantity int64  `json:"quantity"`
		Reason   string `json:"reason"`
		Note     string `json:"note"`
	}](t, env.Data)
	require.Len(t, entries, 3)
	assert.EqualValues(t, 4, entries[0].Quantity)
	assert.Equal(t, "order_reverted", entries[0].Reason)
	assert.EqualValues(t, -4, entries[1].Quantity)
	assert.Contains(t, entries[1].Note, "#"+itoa(order.ID))

	code, env = do(t, r, http.MethodGet, "/api/orders/summary", nil)
	assert.Equal(t, http.StatusOK, code)
	revenue := decode[struct {
		Total string `json:"total_revenue"`
	}](t, env.Data)
	assert.Equal(t, "0", revenue.Total)
}

func TestErrorResponses(t *testing.T) {
	r := newTestServer(t)

	code, env := do(t, r, http.MethodGet, "/api/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, kindNotFound, env.Kind)

	code, env = do(t, r, http.MethodGet, "/api/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, kindValidation, env.Kind)

	code, env = do(t, r, http.MethodPost, "/api/orders", gin.H{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "required", env.Fields["CustomerID"])
	assert.Equal(t, "required", env.Fields["ProductID"])

	code, env = do(t, r, http.MethodPost, "/api/customers", gin.H{"name": "Bad", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "email", env.Fields["Email"])
}

func TestInventoryEndpoints(t *testing.T) {
	r := newTestServer(t)
	code, env := do(t, r, http.MethodPost, "/api/products", gin.H{"name": "Widget", "price": 2})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	product := decode[struct {
		ID uint `json:"id"`
	}](t, env.Data)

	code, env = do(t, r, http.MethodPost, "/api/inventory", gin.H{"product_id": product.ID, "quantity": 5, "direction": "in"})
	require.Equal(t, http.StatusCreated, code, env.Msg)
	w := decode[struct {
		Entry struct {
			ID uint `json:"id"`
		} `json:"entry"`
		Stock int64 `json:"stock"`
	}](t, env.Data)
	assert.EqualValues(t, 5, w.Stock)

	code, env = do(t, r, http.MethodPost, "/api/inventory", gin.H{"product_id": product.ID, "quantity": 9, "direction": "out"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, kindInsufficientStock, env.Kind)

	code, env = do(t, r, http.MethodPost, "/api/inventory", gin.H{"product_id": product.ID, "quantity": 1, "direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "oneof", env.Fields["Direction"])

	reversePath := "/api/inventory/" + itoa(w.Entry.ID) + "/reverse"
	code, env = do(t, r, http.MethodPost, reversePath, nil)
	require.Equal(t, http.StatusCreated, code, env.Msg)
	code, env = do(t, r, http.MethodPost, reversePath, gin.H{"note": "again"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, kindConflict, env.Kind)

	code, env = do(t, r, http.MethodGet, "/api/inventory?product_id="+itoa(product.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]json.RawMessage](t, env.Data), 2)
}

func TestSyncStockRequiresAdminToken(t *testing.T) {
	r := newTestServer(t)

	code, env := do(t, r, http.MethodGet, "/api/inventory/sync-stock/last", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, r, http.MethodPost, "/api/inventory/sync-stock", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = do(t, r, http.MethodPost, "/api/inventory/sync-stock", nil, "X-Admin-Token", testAdminToken)
	require.Equal(t, http.StatusOK, code, env.Msg)
	res := decode[service.ReconcileResult](t, env.Data)
	assert.Empty(t, res.Corrected)

	code, env = do(t, r, http.MethodGet, "/api/inventory/sync-stock/last", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.Contains(string(env.Data), `"trigger":"manual"`))

	code, _ = do(t, r, http.MethodPost, "/api/products/1/stock/warm", nil, "X-Admin-Token", testAdminToken)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
