package routes

import (
	"wallet-provider/internal/handler"

	"github.com/gin-gonic/gin"
)

// RegisterRPCRoutes dapp 侧 JSON-RPC 入口
// POST /api/v1/rpc
func RegisterRPCRoutes(rg *gin.RouterGroup, h *handler.RPCHandler, mw ...gin.HandlerFunc) {
	rg.POST("/rpc", append(mw, h.Call)...)
}
