package server

import (
	"net/http"
	"sync"
	"time"

	"wallet-provider/internal/handler/response"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter 按 origin (没有时按客户端 IP) 限流
// 长时间不活跃的 limiter 由 go-cache 过期清理
type RateLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors *gocache.Cache
}

func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	perSecond := perMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		visitors:  gocache.New(10*time.Minute, 5*time.Minute),
	}
}

func (r *RateLimiter) limiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.visitors.Get(id); ok {
		r.visitors.SetDefault(id, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(r.perSecond, r.burst)
	r.visitors.SetDefault(id, l)
	return l
}

// Allow 供测试和非 HTTP 调用方使用
func (r *RateLimiter) Allow(id string) bool {
	return r.limiter(id).Allow()
}

// Middleware 超限时返回 429 + JSON-RPC -32005
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("Origin")
		if id == "" {
			id = c.ClientIP()
		}
		if !r.Allow(id) {
			logger.Warn("rate limited", zap.String("client", id))
			code, msg, _ := errno.DecodeRPC(errno.ErrLimitExceeded)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.RPCResponse{
				JSONRPC: "2.0",
				Error:   &response.RPCError{Code: code, Message: msg},
			})
			return
		}
		c.Next()
	}
}
