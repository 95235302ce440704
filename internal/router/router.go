package router

import (
	"net/http"
	"strconv"
	"time"

	"biz_manager/internal/config"
	"biz_manager/internal/middleware"
	"biz_manager/internal/service"
	"biz_manager/internal/worker"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Deps 路由依赖。Redis 相关字段均可为 nil。
type Deps struct {
	Svc        *service.Service
	Reconciler *worker.Reconciler
	RDB        *rd.Client
	Logger     *logrus.Logger
	Cfg        config.AppConfig
}

// New 创建 gin 引擎并挂好中间件和路由。
func New(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(d.Logger), middleware.Tracing())

	corsConfig := cors.DefaultConfig()
	if len(d.Cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = d.Cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "X-Admin-Token", middleware.StaffHeader, "X-Request-ID")
	r.Use(cors.New(corsConfig))

	Setup(r, d)
	return r
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	if d.RDB != nil {
		api.Use(middleware.RedisRateLimit(d.RDB, d.Cfg.WriteRateLimit, d.Cfg.WriteRateWindow))
	}
	admin := middleware.AdminToken(d.Cfg.AdminToken)

	// Products
	api.GET("/products", listProducts(d.Svc))
	api.POST("/products", createProduct(d.Svc))
	api.GET("/products/:id", getProduct(d.Svc))
	api.PUT("/products/:id", updateProduct(d.Svc))
	api.DELETE("/products/:id", deleteProduct(d.Svc))
	api.GET("/products/:id/stock", getStock(d.Svc))
	api.GET("/products/:id/ledger", productLedger(d.Svc))
	api.POST("/products/:id/stock/warm", admin, warmStock(d.Svc))

	// Customers
	api.GET("/customers", listCustomers(d.Svc))
	api.POST("/customers", createCustomer(d.Svc))
	api.GET("/customers/:id", getCustomer(d.Svc))
	api.PUT("/customers/:id", updateCustomer(d.Svc))
	api.DELETE("/customers/:id", deleteCustomer(d.Svc))

	// Orders
	api.GET("/orders", listOrders(d.Svc))
	api.POST("/orders", createOrder(d.Svc))
	api.GET("/orders/summary", revenueSummary(d.Svc))
	api.GET("/orders/:id", getOrder(d.Svc))
	api.PUT("/orders/:id/status", setOrderStatus(d.Svc))

	// Inventory ledger
	api.GET("/inventory", listEntries(d.Svc))
	api.POST("/inventory", appendAdjustment(d.Svc))
	api.POST("/inventory/:id/reverse", reverseEntry(d.Svc))
	api.POST("/inventory/sync-stock", admin, syncStock(d.Reconciler))
	api.GET("/inventory/sync-stock/last", lastSync(d.Reconciler))

	// Reports
	api.GET("/reports/summary", stockOverview(d.Svc))
	api.GET("/reports/revenue", revenueSummary(d.Svc))

	api.GET("/notifications", listNotifications(d.Svc))
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// paramID 解析 :id，失败时已写好 400 响应。
func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid id", "kind": kindValidation})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}

// parseDate 接受 YYYY-MM-DD 或 RFC3339，空串返回零值。
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
