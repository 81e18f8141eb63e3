package request

import "encoding/json"

// RPCRequest JSON-RPC 2.0 请求体，origin 等 dapp 元信息由注入脚本附带
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method" binding:"required"`
	Params  json.RawMessage `json:"params"`

	Origin  string                 `json:"origin"`
	Name    string                 `json:"name"`
	Icon    string                 `json:"icon"`
	Context map[string]interface{} `json:"context"`
}
