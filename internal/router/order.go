package router

import (
	"fmt"
	"net/http"

	"biz_manager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type orderRequest struct {
	CustomerID uint             `json:"customer_id" binding:"required,min=1"`
	ProductID  uint             `json:"product_id" binding:"required,min=1"`
	Quantity   int64            `json:"quantity" binding:"required,min=1"`
	Amount     *decimal.Decimal `json:"amount"`
	Status     string           `json:"status"`
	Date       string           `json:"date"`
	Category   string           `json:"category" binding:"max=100"`
	Region     string           `json:"region" binding:"max=100"`
}

func listOrders(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListOrders(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}

func getOrder(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		o, err := svc.GetOrder(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, o)
	}
}

// createOrder 初始状态为 completed 时会同时出库。
func createOrder(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(c, fmt.Errorf("%w: date must be YYYY-MM-DD", service.ErrValidation))
			return
		}
		o, err := svc.CreateOrder(c.Request.Context(), service.CreateOrderInput{
			CustomerID: req.CustomerID,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			Amount:     req.Amount,
			Status:     req.Status,
			Date:       date,
			Category:   req.Category,
			Region:     req.Region,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": o})
	}
}

// setOrderStatus 状态可以放在 JSON body，也可以放在 ?status=。
func setOrderStatus(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		status := c.Query("status")
		if status == "" {
			var req struct {
				Status string `json:"status" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				bindError(c, err)
				return
			}
			status = req.Status
		}
		o, err := svc.SetOrderStatus(c.Request.Context(), id, status)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, o)
	}
}

func revenueSummary(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Revenue(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, sum)
	}
}

// stockOverview 经营概览与库存排行。
func stockOverview(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		overview, err := svc.StockOverview(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, overview)
	}
}
