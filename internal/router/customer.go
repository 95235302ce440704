package router

import (
	"net/http"

	"biz_manager/internal/service"

	"github.com/gin-gonic/gin"
)

type customerRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email" binding:"omitempty,email,max=100"`
	Phone   string `json:"phone" binding:"max=20"`
	Address string `json:"address"`
}

func (r customerRequest) input() service.CustomerInput {
	return service.CustomerInput{Name: r.Name, Email: r.Email, Phone: r.Phone, Address: r.Address}
}

func listCustomers(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListCustomers(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}

// getCustomer 客户详情，附订单历史。
func getCustomer(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		detail, err := svc.GetCustomer(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, detail)
	}
}

func createCustomer(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req customerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		cu, err := svc.CreateCustomer(c.Request.Context(), req.input())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"code": 0, "data": cu})
	}
}

func updateCustomer(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		var req customerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
		cu, err := svc.UpdateCustomer(c.Request.Context(), id, req.input())
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, cu)
	}
}

// deleteCustomer 有订单的客户返回 409。
func deleteCustomer(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := paramID(c)
		if !valid {
			return
		}
		if err := svc.DeleteCustomer(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "deleted"})
	}
}
