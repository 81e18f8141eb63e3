package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-provider/internal/chains"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Gateway 链上 RPC 调用
type Gateway interface {
	Call(ctx context.Context, chainID uint64, method string, params json.RawMessage) (json.RawMessage, error)
}

// RPCGateway 每条链一个 go-ethereum rpc.Client，按需建立连接
type RPCGateway struct {
	table   *chains.Table
	timeout time.Duration

	mu      sync.Mutex
	clients map[uint64]*rpc.Client
}

func New(table *chains.Table, timeout time.Duration) *RPCGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RPCGateway{
		table:   table,
		timeout: timeout,
		clients: make(map[uint64]*rpc.Client),
	}
}

func (g *RPCGateway) Call(ctx context.Context, chainID uint64, method string, params json.RawMessage) (json.RawMessage, error) {
	args, err := splitParams(params)
	if err != nil {
		return nil, err
	}

	client, err := g.client(ctx, chainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var result json.RawMessage
	if err := client.CallContext(ctx, &result, method, args...); err != nil {
		return nil, nodeError(err)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return result, nil
}

// Close 关闭所有连接
func (g *RPCGateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, c := range g.clients {
		c.Close()
		delete(g.clients, id)
	}
}

func (g *RPCGateway) client(ctx context.Context, chainID uint64) (*rpc.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[chainID]; ok {
		return c, nil
	}
	chain, err := g.table.Lookup(chainID)
	if err != nil {
		return nil, err
	}
	c, err := rpc.DialContext(ctx, chain.RpcUrl)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	logger.Info("chain rpc connected", zap.Uint64("chain_id", chainID), zap.String("name", chain.Name))
	g.clients[chainID] = c
	return c, nil
}

// splitParams JSON-RPC 的 params 必须是数组 (或省略)
func splitParams(params json.RawMessage) ([]interface{}, error) {
	if len(params) == 0 || string(params) == "null" {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return nil, errno.ErrInvalidParams.WithMessage("params must be an array")
	}
	args := make([]interface{}, len(raw))
	for i, r := range raw {
		args[i] = r
	}
	return args, nil
}

// nodeError 节点返回的 JSON-RPC 错误原样透传给 dapp
func nodeError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		e := errno.Errno{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			e.Data = dataErr.ErrorData()
		}
		return e
	}
	return fmt.Errorf("chain rpc: %w", err)
}
