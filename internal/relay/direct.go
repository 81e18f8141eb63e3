package relay

import (
	"context"
	"encoding/json"
	"errors"

	"wallet-provider/internal/gateway"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DirectRelay 直接通过节点 eth_sendRawTransaction 广播，总是同步拿到 hash
type DirectRelay struct {
	gw gateway.Gateway
}

func NewDirectRelay(gw gateway.Gateway) *DirectRelay {
	return &DirectRelay{gw: gw}
}

func (r *DirectRelay) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	raw, err := r.gw.Call(ctx, req.ChainID, "eth_sendRawTransaction", gateway.Params(req.RawTx))
	if err != nil {
		// 节点拒绝 (nonce too low / insufficient funds) 视为推送失败
		logger.Warn("node rejected raw transaction",
			zap.Uint64("chain_id", req.ChainID),
			zap.String("from", req.From.Hex()),
			zap.Uint64("nonce", req.Nonce),
			zap.Error(err))
		return SubmitResult{PushStatus: PushFailed, Reason: err.Error()}, nil
	}

	var hash common.Hash
	if err := json.Unmarshal(raw, &hash); err != nil {
		return SubmitResult{}, errors.New("node returned malformed transaction hash")
	}
	return SubmitResult{Hash: &hash, PushStatus: PushAccepted}, nil
}
