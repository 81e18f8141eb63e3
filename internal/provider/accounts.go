package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"wallet-provider/internal/registry"
	"wallet-provider/internal/session"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

func lowerHex(addrs ...common.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, strings.ToLower(a.Hex()))
	}
	return out
}

// accounts 未连接或已锁定时返回空列表，不触发任何审批
func (p *Provider) accounts(ctx context.Context, f *flow) (any, error) {
	if p.Signer.IsLocked() {
		return []string{}, nil
	}
	if f.req.Origin == p.InternalOrigin {
		return lowerHex(p.Signer.Accounts()...), nil
	}
	sess, err := p.Sessions.Get(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return []string{}, nil
	}
	return lowerHex(sess.Account), nil
}

func (p *Provider) coinbase(ctx context.Context, f *flow) (any, error) {
	list, err := p.accounts(ctx, f)
	if err != nil {
		return nil, err
	}
	if accts := list.([]string); len(accts) > 0 {
		return accts[0], nil
	}
	return nil, nil
}

// requestAccounts 闸门保证已解锁且已连接
func (p *Provider) requestAccounts(ctx context.Context, f *flow) (any, error) {
	if f.session == nil {
		return lowerHex(p.State.Account()), nil
	}
	return lowerHex(f.session.Account), nil
}

type caveat struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type permission struct {
	ParentCapability string   `json:"parentCapability"`
	Invoker          string   `json:"invoker"`
	Caveats          []caveat `json:"caveats"`
	Date             int64    `json:"date"`
}

func permissionsOf(sess *session.Session) []permission {
	if sess == nil {
		return []permission{}
	}
	return []permission{{
		ParentCapability: "eth_accounts",
		Invoker:          sess.Origin,
		Caveats:          []caveat{{Type: "restrictReturnedAccounts", Value: lowerHex(sess.Account)}},
		Date:             sess.ConnectedAt.UnixMilli(),
	}}
}

func (p *Provider) getPermissions(ctx context.Context, f *flow) (any, error) {
	sess, err := p.Sessions.Get(ctx, f.req.Origin)
	if err != nil {
		return nil, err
	}
	return permissionsOf(sess), nil
}

// validatePermissionRequest 只支持 eth_accounts 权限
func (p *Provider) validatePermissionRequest(_ context.Context, call registry.Call) (bool, error) {
	var req map[string]json.RawMessage
	if err := decodeObject(call.Params, &req); err != nil {
		return false, err
	}
	if _, ok := req["eth_accounts"]; !ok {
		return false, errno.ErrInvalidParams.WithMessage("only eth_accounts permission can be requested")
	}
	return false, nil
}

// requestPermissions 重新授权，session 账户切换为当前账户
func (p *Provider) requestPermissions(ctx context.Context, f *flow) (any, error) {
	account := p.State.Account()
	chainID, chosen, err := p.payloadChain(f.payload)
	if err != nil {
		return nil, err
	}

	sess, err := p.Sessions.Update(ctx, f.req.Origin, func(s *session.Session) error {
		s.Account = account
		if chosen {
			s.ChainID = chainID
		}
		return nil
	})
	if errors.Is(err, session.ErrNoSession) {
		if !chosen {
			chainID = p.State.ChainID()
		}
		sess = &session.Session{
			Origin: f.req.Origin, Name: f.req.Name, Icon: f.req.Icon,
			ChainID: chainID, Account: account, ConnectedAt: time.Now().UTC(),
		}
		err = p.Sessions.Save(ctx, sess)
	}
	if err != nil {
		return nil, err
	}
	return permissionsOf(sess), nil
}

func (p *Provider) revokePermissions(ctx context.Context, f *flow) (any, error) {
	if err := p.Sessions.Delete(ctx, f.req.Origin); err != nil {
		return nil, err
	}
	logger.Info("origin disconnected", zap.String("origin", f.req.Origin))
	return nil, nil
}

// markSigned 记录该 origin 已经签过名
func (p *Provider) markSigned(ctx context.Context, origin string) {
	_, err := p.Sessions.Update(ctx, origin, func(s *session.Session) error {
		s.SignedBefore = true
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Warn("update session failed", zap.String("origin", origin), zap.Error(err))
	}
}

// sessionChain 执行时重新读取 origin 连接的链
func (p *Provider) sessionChain(ctx context.Context, origin string) (uint64, error) {
	sess, err := p.Sessions.Get(ctx, origin)
	if err != nil {
		return 0, err
	}
	if sess == nil {
		return p.State.ChainID(), nil
	}
	return sess.ChainID, nil
}
