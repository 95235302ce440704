package router

import (
	"biz_manager/internal/service"

	"github.com/gin-gonic/gin"
)

func listNotifications(svc *service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.ListNotifications(c.Request.Context(), queryInt(c, "limit"))
		if err != nil {
			writeError(c, err)
			return
		}
		ok(c, list)
	}
}
