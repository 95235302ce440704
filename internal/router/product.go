package router

import (
	"net/http"

	"biz_manager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name        string          `json:"name" binding:"required,max=150"`
	Category    string          `json:"category" binding:"max=100"`
	Region      string          `json:"region" binding:"max=100"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Brand       string          `json:"brand" binding:"max=100"`
	Supplier    string          `json:"supplier" binding:"max=150"`
	SKU         string          `json:"sku" binding:"max=100"`
	// 创建时的期初库存，stock 为兼容字段
	InitialStock int64  `json:"initial_stock" binding:"min=0"`
	Stock        int64  `json:"stock" binding:"min=0"`
	Location     string `json:"location" binding:"max=100"`
}

func (r productRequest) input() service.ProductInput {
	initial := r.InitialStock
	if initial == 0 {
		initial = r.Stock
	}
	return service.ProductInput{
		Name:         r.Name,
		Category:     r.Category,
		Region:       r.Region,
		Price:        r.Price,
		Description:  r.Description,
		Brand:        r.Brand,
		Supplier:     r.Supplier,
		SKU:          r.SKU,
		InitialStock: initial,
		Location:     r.Location,
	}
}

func listProducts(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}

func getProduct(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		p, err := svc.GetProduct(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, p)
	}
}

// createProduct 创建商品，期初库存写入台账。
func createProduct(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), req.input())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": p})
	}
}

// updateProduct 库存字段会被忽略，库存只能通过台账变更。
func updateProduct(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		var req productRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		in := req.input()
		in.InitialStock = 0
		p, err := svc.UpdateProduct(c.Request.Context(), id, in)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, p)
	}
}

func deleteProduct(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if err := svc.DeleteProduct(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "deleted"})
	}
}

// getStock 优先读 Redis 缓存，未命中或未启用时回源数据库。
func getStock(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		st, err := svc.ReadStock(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, st)
	}
}

// warmStock 将数据库库存预热到 Redis。
func warmStock(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		st, err := svc.WarmStock(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, st)
	}
}

func productLedger(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		list, err := svc.ListEntries(c.Request.Context(), id, queryInt(c, "limit"))
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}
