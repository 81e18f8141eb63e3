package server

import (
	"wallet-provider/internal/handler"
	"wallet-provider/internal/handler/response"
	"wallet-provider/internal/server/routes"
	"wallet-provider/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 路由依赖的全部 handler
type Handlers struct {
	RPC      *handler.RPCHandler
	Approval *handler.ApprovalHandler
	Wallet   *handler.WalletHandler
	Limiter  *RateLimiter // 为 nil 时不限流
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
// monitor.Init 由调用方负责，避免测试中重复注册指标
func NewHTTPRouter(h Handlers) *gin.Engine {
	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler())) // 暴露给 Prometheus

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		api.GET("/ping", func(c *gin.Context) {
			response.Success(c, gin.H{"pong": true})
		})

		var mw []gin.HandlerFunc
		if h.Limiter != nil {
			mw = append(mw, h.Limiter.Middleware())
		}
		routes.RegisterRPCRoutes(api, h.RPC, mw...)
		routes.RegisterApprovalRoutes(api, h.Approval)
		routes.RegisterWalletRoutes(api, h.Wallet)
	}

	return r
}
