package routes

import (
	"wallet-provider/internal/handler"

	"github.com/gin-gonic/gin"
)

func RegisterApprovalRoutes(rg *gin.RouterGroup, h *handler.ApprovalHandler) {
	approvals := rg.Group("/approvals")
	{
		approvals.GET("", h.List)
		approvals.GET("/current", h.Current)
		approvals.POST("/:id/approve", h.Approve)
		approvals.POST("/:id/reject", h.Reject)
	}
}
