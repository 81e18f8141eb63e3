package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/chains"
	"wallet-provider/internal/gateway"
	"wallet-provider/internal/originlock"
	"wallet-provider/internal/registry"
	"wallet-provider/internal/rpccache"
	"wallet-provider/internal/session"
	"wallet-provider/internal/signer"
	"wallet-provider/internal/store"
	"wallet-provider/internal/txmanager"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"

	"go.uber.org/zap"
)

// Request dapp 发来的一次 RPC 请求，进入 pipeline 后不再修改
type Request struct {
	Method  string                 `json:"method"`
	Params  json.RawMessage        `json:"params,omitempty"`
	Origin  string                 `json:"origin"`
	Name    string                 `json:"name,omitempty"`
	Icon    string                 `json:"icon,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

type Deps struct {
	Locks    *originlock.Registry
	Cache    *rpccache.Cache
	Broker   *approval.Broker
	Tx       *txmanager.Manager
	Sessions *session.Store
	Assets   *session.AssetStore
	State    *session.State
	Signer   signer.Signer
	Gateway  gateway.Gateway
	Chains   *chains.Table
	Store    *store.PendingStore
	// InternalOrigin 钱包自身 UI 的 origin
	InternalOrigin string
}

// Provider dapp 请求的唯一入口
type Provider struct {
	Deps
	registry *registry.Registry
	handlers map[string]handlerFunc
}

func New(d Deps) (*Provider, error) {
	if d.Broker == nil || d.Locks == nil || d.Sessions == nil || d.State == nil || d.Signer == nil {
		return nil, errors.New("provider: missing dependency")
	}
	p := &Provider{Deps: d}
	descs, handlers := p.methods()
	reg, err := registry.New(descs...)
	if err != nil {
		return nil, err
	}
	p.registry = reg
	p.handlers = handlers
	return p, nil
}

func (p *Provider) Registry() *registry.Registry {
	return p.registry
}

// Dispatch 依次经过 Resolve / LockGate / ConnectGate / ApprovalGate / Execute
func (p *Provider) Dispatch(ctx context.Context, req *Request) (any, error) {
	if req == nil || req.Method == "" {
		return nil, errno.ErrInvalidParams.WithMessage("method is required")
	}
	if req.Origin == "" {
		return nil, errno.ErrInvalidParams.WithMessage("origin is required")
	}

	start := time.Now()
	f := &flow{req: req}
	result, err := p.run(ctx, f)

	outcome := "ok"
	if err != nil {
		code, _ := errno.Decode(err)
		outcome = fmt.Sprintf("%d", code)
		logger.Info("dispatch failed",
			zap.String("method", req.Method),
			zap.String("origin", req.Origin),
			zap.String("stage", string(f.stage)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	} else {
		logger.Debug("dispatch done",
			zap.String("method", req.Method),
			zap.String("origin", req.Origin),
			zap.Duration("elapsed", time.Since(start)))
	}
	monitor.RequestsTotal.WithLabelValues(metricMethod(f), outcome).Inc()
	return result, err
}

// metricMethod 透传方法数量不可控，统一归为一类
func metricMethod(f *flow) string {
	switch {
	case f.desc.Passthrough:
		return "passthrough"
	case f.desc.Name == "":
		return "unknown"
	default:
		return f.desc.Name
	}
}
