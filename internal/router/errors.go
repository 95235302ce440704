package router

import (
	"errors"
	"net/http"

	"biz_manager/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const (
	kindNotFound          = "not_found"
	kindValidation        = "validation"
	kindInsufficientStock = "insufficient_stock"
	kindConflict          = "conflict"
	kindBusy              = "busy"
	kindUnavailable       = "unavailable"
	kindInternal          = "internal"
)

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrImmutableEntry):
		return http.StatusBadRequest, kindValidation
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, kindInsufficientStock
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, kindConflict
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict, kindBusy
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, kindUnavailable
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// writeError 业务错误映射为统一响应体；5xx 同时挂到 c.Errors 供访问日志记录。
func writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"code": status, "msg": err.Error(), "kind": kind})
}

// bindError 请求体绑定/校验失败。
func bindError(c *gin.Context, err error) {
	body := gin.H{"code": http.StatusBadRequest, "msg": err.Error(), "kind": kindValidation}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		body["fields"] = fields
		body["msg"] = "invalid request body"
	}
	c.JSON(http.StatusBadRequest, body)
}
