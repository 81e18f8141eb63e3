package handler

import (
	"context"
	"net"

	"wallet-provider/internal/handler/request"
	"wallet-provider/internal/handler/response"
	"wallet-provider/internal/provider"
	"wallet-provider/pkg/errno"

	"github.com/gin-gonic/gin"
)

// Dispatcher 由 provider.Provider 实现
type Dispatcher interface {
	Dispatch(ctx context.Context, req *provider.Request) (any, error)
}

type RPCHandler struct {
	provider       Dispatcher
	internalOrigin string
}

// NewRPCHandler internalOrigin 为钱包自身 UI 的 origin，只接受本机连接
func NewRPCHandler(p Dispatcher, internalOrigin string) *RPCHandler {
	return &RPCHandler{provider: p, internalOrigin: internalOrigin}
}

// Call dapp JSON-RPC 入口
// @Summary EIP-1193 request
// @Description 审批类方法会挂起直到用户在钱包中作答
// @Tags Provider
// @Accept json
// @Produce json
// @Param request body request.RPCRequest true "JSON-RPC Request"
// @Success 200 {object} response.RPCResponse
// @Router /api/v1/rpc [post]
func (h *RPCHandler) Call(c *gin.Context) {
	// 1. 绑定参数
	var req request.RPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RPCFail(c, nil, errno.ErrInvalidParams.WithMessage("invalid json-rpc request"))
		return
	}

	// 2. 确定 origin
	origin, err := h.origin(c, req.Origin)
	if err != nil {
		response.RPCFail(c, req.ID, err)
		return
	}

	// 3. 调用 Provider
	res, err := h.provider.Dispatch(c.Request.Context(), &provider.Request{
		Method:  req.Method,
		Params:  req.Params,
		Origin:  origin,
		Name:    req.Name,
		Icon:    req.Icon,
		Context: req.Context,
	})
	if err != nil {
		response.RPCFail(c, req.ID, err)
		return
	}
	response.RPCResult(c, req.ID, res)
}

// origin 浏览器写入的 Origin 头优先，body 中的 origin 只在没有请求头时使用
func (h *RPCHandler) origin(c *gin.Context, fromBody string) (string, error) {
	origin := c.GetHeader("Origin")
	if origin == "" {
		origin = fromBody
	}
	if h.internalOrigin != "" && origin == h.internalOrigin && !loopback(c.RemoteIP()) {
		return "", errno.ErrUnauthorized.WithMessage("internal origin is only accepted from localhost")
	}
	return origin, nil
}

func loopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
