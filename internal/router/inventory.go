package router

import (
	"fmt"
	"net/http"

	"biz_manager/internal/model"
	"biz_manager/internal/service"
	"biz_manager/internal/worker"

	"github.com/gin-gonic/gin"
)

type adjustmentRequest struct {
	ProductID uint                 `json:"product_id" binding:"required,min=1"`
	Quantity  int64                `json:"quantity" binding:"required"`
	Direction model.StockDirection `json:"direction" binding:"omitempty,oneof=in out"`
	Location  string               `json:"location" binding:"max=100"`
	Note      string               `json:"note"`
	Date      string               `json:"date"`
}

// listEntries ?product_id= 过滤单个商品，?limit= 控制条数。
func listEntries(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListEntries(c.Request.Context(), uint(queryInt(c, "product_id")), queryInt(c, "limit"))
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}

func appendAdjustment(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req adjustmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(c, fmt.Errorf("%w: date must be YYYY-MM-DD", service.ErrValidation))
			return
		}
		w, err := svc.AppendAdjustment(c.Request.Context(), service.AdjustmentInput{
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Direction: req.Direction,
			Location:  req.Location,
			Note:      req.Note,
			Date:      date,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": w})
	}
}

// reverseEntry body 可省略。
func reverseEntry(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		var req struct {
			Note string `json:"note"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				bindError(c, err)
				return
			}
		}
		w, err := svc.ReverseEntry(c.Request.Context(), id, req.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": w})
	}
}

// syncStock 以台账为准重算全部商品库存。
func syncStock(rec *worker.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := rec.RunOnce(c.Request.Context(), worker.TriggerManual)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, res)
	}
}

func lastSync(rec *worker.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, found := rec.Last(c.Request.Context())
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "no reconciliation has run yet", "kind": kindNotFound})
			return
		}
		ok(c, st)
	}
}
