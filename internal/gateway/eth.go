package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Params 把参数编码成 JSON-RPC params 数组
func Params(args ...interface{}) json.RawMessage {
	if args == nil {
		args = []interface{}{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		// 只会传入可编码的基础类型
		panic(fmt.Sprintf("gateway: encode params: %v", err))
	}
	return b
}

func callInto(ctx context.Context, g Gateway, chainID uint64, method string, out interface{}, args ...interface{}) error {
	raw, err := g.Call(ctx, chainID, method, Params(args...))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// NonceAt 链上的下一个可用 nonce (包含 txpool 中的 pending 交易)
func NonceAt(ctx context.Context, g Gateway, chainID uint64, addr common.Address) (uint64, error) {
	var n hexutil.Uint64
	if err := callInto(ctx, g, chainID, "eth_getTransactionCount", &n, addr, "pending"); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func GasPrice(ctx context.Context, g Gateway, chainID uint64) (*big.Int, error) {
	var p hexutil.Big
	if err := callInto(ctx, g, chainID, "eth_gasPrice", &p); err != nil {
		return nil, err
	}
	return p.ToInt(), nil
}

func BalanceAt(ctx context.Context, g Gateway, chainID uint64, addr common.Address) (*big.Int, error) {
	var b hexutil.Big
	if err := callInto(ctx, g, chainID, "eth_getBalance", &b, addr, "latest"); err != nil {
		return nil, err
	}
	return b.ToInt(), nil
}

// CallMsg eth_estimateGas 的参数
type CallMsg struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

func EstimateGas(ctx context.Context, g Gateway, chainID uint64, msg CallMsg) (uint64, error) {
	var gas hexutil.Uint64
	if err := callInto(ctx, g, chainID, "eth_estimateGas", &gas, msg); err != nil {
		return 0, err
	}
	return uint64(gas), nil
}

// Receipt 只取 watcher 需要的字段
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
}

// Succeeded 交易执行成功
func (r *Receipt) Succeeded() bool {
	return r.Status == 1
}

// TransactionReceipt 交易未上链时返回 nil, nil
func TransactionReceipt(ctx context.Context, g Gateway, chainID uint64, hash common.Hash) (*Receipt, error) {
	var r *Receipt
	if err := callInto(ctx, g, chainID, "eth_getTransactionReceipt", &r, hash); err != nil {
		return nil, err
	}
	return r, nil
}
