package provider

import (
	"context"
	"encoding/json"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/chains"
	"wallet-provider/internal/registry"
	"wallet-provider/internal/txmanager"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// validateSendTransaction from / chainId 不一致时在展示审批前失败
func (p *Provider) validateSendTransaction(_ context.Context, call registry.Call) (bool, error) {
	var params txmanager.TxParams
	if err := decodeObject(call.Params, &params); err != nil {
		return false, err
	}
	return false, txmanager.ValidateSender(params, call.Account, call.ChainID)
}

func (p *Provider) sendTransaction(ctx context.Context, f *flow) (any, error) {
	var params txmanager.TxParams
	if err := decodeObject(f.req.Params, &params); err != nil {
		return nil, err
	}
	// 1. 用户在确认页修改的 nonce / gas
	if len(f.payload) > 0 {
		var o txmanager.Overrides
		if err := json.Unmarshal(f.payload, &o); err != nil {
			return nil, errno.ErrInvalidParams.WithMessagef("invalid approval payload: %v", err)
		}
		params = params.WithOverrides(o)
	}

	// 2. 重新读取当前账户和链再构建
	chainID, err := p.sessionChain(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	account := p.State.Account()
	st, err := p.Tx.Build(ctx, txmanager.BuildRequest{
		Origin:  f.req.Origin,
		Params:  params,
		Account: account,
		ChainID: chainID,
	})
	if err != nil {
		return nil, err
	}

	submit := func(ctx context.Context) (any, error) {
		res, err := p.Tx.SignAndSubmit(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		p.markSigned(ctx, f.req.Origin)
		return res.Hash.Hex(), nil
	}

	// 3. 硬件签名器需要先在设备上确认
	if p.Signer.NeedsConfirmation(account) {
		logger.Info("waiting for signer confirmation", zap.String("id", st.ID), zap.String("account", account.Hex()))
		return &NextStep{
			Kind: approval.KindSignerConfirm,
			Params: map[string]interface{}{
				"signing_id": st.ID,
				"from":       account.Hex(),
				"chainId":    chains.Hex(chainID),
				"explain":    st.Explain,
			},
			Resume: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return submit(ctx)
			},
			Abort: func() { p.Tx.Stash().Discard(st.ID) },
		}, nil
	}
	return submit(ctx)
}

// accountAndChain 可选参数 [address, chainId]，缺省为当前账户和当前链
func (p *Provider) accountAndChain(params json.RawMessage) (common.Address, uint64, error) {
	list, err := paramList(params, 0)
	if err != nil {
		return common.Address{}, 0, err
	}
	account, chainID := p.State.Account(), p.State.ChainID()
	if len(list) > 0 {
		if account, err = paramAddress(list[0]); err != nil {
			return common.Address{}, 0, err
		}
	}
	if len(list) > 1 {
		s, err := paramString(list[1])
		if err != nil {
			return common.Address{}, 0, err
		}
		if chainID, err = chains.ParseID(s); err != nil {
			return common.Address{}, 0, err
		}
	}
	if _, err := p.Chains.Lookup(chainID); err != nil {
		return common.Address{}, 0, err
	}
	return account, chainID, nil
}

func (p *Provider) pendingTransactions(ctx context.Context, f *flow) (any, error) {
	account, chainID, err := p.accountAndChain(f.req.Params)
	if err != nil {
		return nil, err
	}
	return p.Store.ListByAddress(ctx, account, chainID)
}

func (p *Provider) recommendNonce(ctx context.Context, f *flow) (any, error) {
	account, chainID, err := p.accountAndChain(f.req.Params)
	if err != nil {
		return nil, err
	}
	nonce, err := p.Tx.RecommendNonce(ctx, account, chainID)
	if err != nil {
		return nil, err
	}
	return hexutil.Uint64(nonce), nil
}
