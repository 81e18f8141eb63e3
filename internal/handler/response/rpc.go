package response

import (
	"encoding/json"
	"net/http"

	"wallet-provider/pkg/errno"

	"github.com/gin-gonic/gin"
)

const jsonrpcVersion = "2.0"

// RPCError JSON-RPC 2.0 error 对象
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCResponse JSON-RPC 2.0 响应，result 与 error 二选一
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// MarshalJSON 出错时不输出 result 字段；成功时 result 为 null 也要保留
func (r RPCResponse) MarshalJSON() ([]byte, error) {
	id := r.ID
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Error   *RPCError       `json:"error"`
		}{r.JSONRPC, id, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  interface{}     `json:"result"`
	}{r.JSONRPC, id, r.Result})
}

func RPCResult(c *gin.Context, id json.RawMessage, result interface{}) {
	c.JSON(http.StatusOK, RPCResponse{JSONRPC: jsonrpcVersion, ID: id, Result: result})
}

// RPCFail 错误码直接透传给 dapp (EIP-1193 / EIP-1474)
func RPCFail(c *gin.Context, id json.RawMessage, err error) {
	code, msg, data := errno.DecodeRPC(err)
	c.JSON(http.StatusOK, RPCResponse{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: msg, Data: data},
	})
}
