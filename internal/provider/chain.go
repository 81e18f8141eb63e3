package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"wallet-provider/internal/chains"
	"wallet-provider/internal/registry"
	"wallet-provider/internal/rpccache"
	"wallet-provider/internal/session"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

func (p *Provider) chainID(ctx context.Context, f *flow) (any, error) {
	id, err := p.sessionChain(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	return chains.Hex(id), nil
}

func (p *Provider) netVersion(ctx context.Context, f *flow) (any, error) {
	id, err := p.sessionChain(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	return strconv.FormatUint(id, 10), nil
}

type chainParams struct {
	ChainID   string `json:"chainId"`
	ChainName string `json:"chainName,omitempty"`
}

func (p *Provider) requestedChain(params json.RawMessage) (uint64, error) {
	var req chainParams
	if err := decodeObject(params, &req); err != nil {
		return 0, err
	}
	id, err := chains.ParseID(req.ChainID)
	if err != nil {
		return 0, err
	}
	if !p.Chains.Supported(id) {
		return 0, errno.ErrChainNotSupported.WithMessagef("Unrecognized chain ID %q.", req.ChainID)
	}
	return id, nil
}

// validateChainChange 不支持的链直接报错；已经是当前链则无需审批
func (p *Provider) validateChainChange(_ context.Context, call registry.Call) (bool, error) {
	id, err := p.requestedChain(call.Params)
	if err != nil {
		return false, err
	}
	return id == call.ChainID, nil
}

func (p *Provider) switchChain(ctx context.Context, f *flow) (any, error) {
	id, err := p.requestedChain(f.req.Params)
	if err != nil {
		return nil, err
	}
	if f.req.Origin == p.InternalOrigin {
		p.State.SetChainID(id)
		return nil, nil
	}

	_, err = p.Sessions.Update(ctx, f.req.Origin, func(s *session.Session) error {
		s.ChainID = id
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return nil, err
	}
	logger.Info("origin switched chain", zap.String("origin", f.req.Origin), zap.Uint64("chain_id", id))
	return nil, nil
}

// passthrough 未注册的链上只读查询，经过 RPC 结果缓存转发给节点
func (p *Provider) passthrough(ctx context.Context, f *flow) (any, error) {
	chainID := p.State.ChainID()
	account := ""
	sess, err := p.Sessions.Get(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		chainID = sess.ChainID
		account = sess.Account.Hex()
	}

	call := func(ctx context.Context) (json.RawMessage, error) {
		return p.Gateway.Call(ctx, chainID, f.req.Method, f.req.Params)
	}
	if p.Cache == nil || !rpccache.Cacheable(f.req.Method) {
		return call(ctx)
	}
	return p.Cache.Do(ctx, rpccache.Key{
		Address: account,
		Method:  f.req.Method,
		Params:  f.req.Params,
		ChainID: chainID,
	}, call)
}
