package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wallet-provider/internal/approval"
	"wallet-provider/internal/chains"
	"wallet-provider/internal/registry"
	"wallet-provider/internal/session"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"

	"go.uber.org/zap"
)

// Stage pipeline 的状态
type Stage string

const (
	StageResolving     Stage = "resolving"
	StageLockCheck     Stage = "lock_check"
	StageConnectCheck  Stage = "connect_check"
	StageApprovalCheck Stage = "approval_check"
	StageExecuting     Stage = "executing"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

var stageTransitions = map[Stage][]Stage{
	StageResolving:     {StageLockCheck, StageFailed},
	StageLockCheck:     {StageConnectCheck, StageFailed},
	StageConnectCheck:  {StageApprovalCheck, StageFailed},
	StageApprovalCheck: {StageExecuting, StageFailed},
	StageExecuting:     {StageDone, StageFailed},
}

func canTransition(from, to Stage) bool {
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// flow 单个请求在 pipeline 中的上下文
type flow struct {
	req     *Request
	stage   Stage
	desc    registry.MethodDescriptor
	handler handlerFunc

	session   *session.Session
	connected bool // 本次请求刚完成 connect 审批
	skipped   bool // validator 放行，未展示审批
	payload   json.RawMessage

	result any
	trace  []Stage
}

type stageFunc func(ctx context.Context, f *flow) (Stage, error)

func (p *Provider) stages() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageResolving:     p.resolve,
		StageLockCheck:     p.lockGate,
		StageConnectCheck:  p.connectGate,
		StageApprovalCheck: p.approvalGate,
		StageExecuting:     p.execute,
	}
}

func (p *Provider) run(ctx context.Context, f *flow) (any, error) {
	stages := p.stages()
	f.stage = StageResolving
	for {
		f.trace = append(f.trace, f.stage)
		fn, ok := stages[f.stage]
		if !ok {
			return f.result, nil
		}

		next, err := fn(ctx, f)
		if err != nil {
			f.stage = StageFailed
			return nil, err
		}
		if !canTransition(f.stage, next) {
			f.stage = StageFailed
			return nil, errno.ErrInternal.WithMessagef("illegal stage transition %s -> %s", f.stage, next)
		}
		f.stage = next
		if f.stage == StageDone {
			f.trace = append(f.trace, f.stage)
			return f.result, nil
		}
	}
}

// resolve 分类方法；InternalOnly 只允许钱包自身调用
func (p *Provider) resolve(_ context.Context, f *flow) (Stage, error) {
	desc, err := p.registry.Classify(f.req.Method)
	if err != nil {
		return StageFailed, err
	}
	if desc.InternalOnly && f.req.Origin != p.InternalOrigin {
		return StageFailed, errno.ErrUnauthorized.WithMessagef("%s is only available to the wallet", desc.Name)
	}

	f.desc = desc
	if desc.Passthrough {
		f.handler = p.passthrough
	} else {
		f.handler = p.handlers[desc.Name]
	}
	if f.handler == nil {
		return StageFailed, errno.ErrMethodNotFound.WithMessagef("the method %s does not exist/is not available", desc.Name)
	}
	return StageLockCheck, nil
}

// lockGate 钱包锁定时请求一次 unlock 审批
func (p *Provider) lockGate(ctx context.Context, f *flow) (Stage, error) {
	if f.desc.Capability == registry.Safe || !p.Signer.IsLocked() {
		return StageConnectCheck, nil
	}

	guard, err := p.Locks.Acquire(ctx, f.req.Origin, approval.KindUnlock)
	if err != nil {
		return StageFailed, err
	}
	defer guard.Release()

	// 拿到锁期间可能已被其他 origin 的请求解锁
	if !p.Signer.IsLocked() {
		return StageConnectCheck, nil
	}

	payload, err := p.Broker.Request(ctx, p.ticket(f, approval.KindUnlock, nil))
	if err != nil {
		return StageFailed, err
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return StageFailed, errno.ErrInvalidParams.WithMessage("unlock payload must carry a password")
	}
	if err := p.Signer.Unlock(body.Password); err != nil {
		logger.Warn("unlock failed", zap.String("origin", f.req.Origin), zap.Error(err))
		return StageFailed, errno.ErrSignerUnavailable.WithMessage("unlock failed")
	}
	if accts := p.Signer.Accounts(); len(accts) > 0 {
		p.State.InitAccount(accts[0])
	}
	return StageConnectCheck, nil
}

// connectGate origin 未连接时请求一次 connect 审批并创建 session
func (p *Provider) connectGate(ctx context.Context, f *flow) (Stage, error) {
	if f.desc.Capability == registry.Safe {
		return StageApprovalCheck, nil
	}
	// 钱包自身始终视为已连接
	if f.req.Origin == p.InternalOrigin {
		return StageApprovalCheck, nil
	}

	sess, err := p.Sessions.Get(ctx, f.req.Origin)
	if err != nil {
		return StageFailed, err
	}
	if sess != nil {
		f.session = sess
		return StageApprovalCheck, nil
	}

	guard, err := p.Locks.Acquire(ctx, f.req.Origin, approval.KindConnect)
	if err != nil {
		return StageFailed, err
	}
	defer guard.Release()

	// 拿到锁之前可能已有并行请求完成了连接
	if sess, err = p.Sessions.Get(ctx, f.req.Origin); err != nil {
		return StageFailed, err
	}
	if sess != nil {
		f.session = sess
		return StageApprovalCheck, nil
	}

	params := map[string]interface{}{
		"origin":  f.req.Origin,
		"name":    f.req.Name,
		"icon":    f.req.Icon,
		"chainId": chains.Hex(p.State.ChainID()),
	}
	payload, err := p.Broker.Request(ctx, p.ticket(f, approval.KindConnect, params))
	if err != nil {
		return StageFailed, err
	}

	chainID, err := p.chosenChain(payload)
	if err != nil {
		return StageFailed, err
	}
	account := p.State.Account()
	if account == zeroAddress {
		return StageFailed, errno.ErrUnauthorized.WithMessage("no active account")
	}

	sess = &session.Session{
		Origin:      f.req.Origin,
		Name:        f.req.Name,
		Icon:        f.req.Icon,
		ChainID:     chainID,
		Account:     account,
		ConnectedAt: time.Now().UTC(),
	}
	if err := p.Sessions.Save(ctx, sess); err != nil {
		return StageFailed, err
	}
	logger.Info("origin connected",
		zap.String("origin", sess.Origin),
		zap.Uint64("chain_id", sess.ChainID),
		zap.String("account", sess.Account.Hex()))

	f.session = sess
	f.connected = true
	return StageApprovalCheck, nil
}

// chosenChain connect 审批可以指定链，默认当前链
func (p *Provider) chosenChain(payload json.RawMessage) (uint64, error) {
	id, ok, err := p.payloadChain(payload)
	if err != nil {
		return 0, err
	}
	if !ok {
		return p.State.ChainID(), nil
	}
	return id, nil
}

func (p *Provider) payloadChain(payload json.RawMessage) (uint64, bool, error) {
	var body struct {
		ChainID string `json:"chainId"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &body)
	}
	if body.ChainID == "" {
		return 0, false, nil
	}
	id, err := chains.ParseID(body.ChainID)
	if err != nil {
		return 0, false, err
	}
	if p.Chains != nil && !p.Chains.Supported(id) {
		return 0, false, errno.ErrChainNotSupported.WithMessagef("chain %s is not supported", body.ChainID)
	}
	return id, true, nil
}

// approvalGate 校验账户一致性、运行 validator、请求审批
func (p *Provider) approvalGate(ctx context.Context, f *flow) (Stage, error) {
	if f.desc.Capability != registry.RequiresApproval {
		return StageExecuting, nil
	}

	account := p.State.Account()
	chainID := p.State.ChainID()
	if f.session != nil {
		chainID = f.session.ChainID
		// connect 类审批本身会刷新 session 的账户
		if f.session.Account != account && f.desc.ApprovalKind != approval.KindConnect {
			return StageFailed, errno.ErrInvalidParams.WithMessage("account mismatch")
		}
	}

	// 1. validator
	if f.desc.Validator != nil {
		pass, err := f.desc.Validator(ctx, registry.Call{
			Method:  f.req.Method,
			Params:  f.req.Params,
			Origin:  f.req.Origin,
			Account: account,
			ChainID: chainID,
		})
		if err != nil {
			return StageFailed, err
		}
		if pass {
			f.skipped = true
			return StageExecuting, nil
		}
	}

	// 2. 刚在 ConnectGate 完成连接，不再重复弹 connect
	if f.connected && f.desc.ApprovalKind == approval.KindConnect {
		return StageExecuting, nil
	}

	// 3. connect / unlock 同一 origin 同时只能有一个
	kind := f.desc.ApprovalKind
	if kind == approval.KindConnect || kind == approval.KindUnlock {
		guard, err := p.Locks.Acquire(ctx, f.req.Origin, kind)
		if err != nil {
			return StageFailed, err
		}
		defer guard.Release()
	}

	payload, err := p.Broker.Request(ctx, p.ticket(f, kind, f.req.Params))
	if err != nil {
		return StageFailed, err
	}
	f.payload = payload
	return StageExecuting, nil
}

// execute 运行 handler；handler 返回 NextStep 时继续请求审批直到得到最终结果
func (p *Provider) execute(ctx context.Context, f *flow) (Stage, error) {
	res, err := f.handler(ctx, f)
	for err == nil {
		step, ok := res.(*NextStep)
		if !ok {
			break
		}
		var payload json.RawMessage
		payload, err = p.Broker.Request(ctx, p.ticket(f, step.Kind, step.Params), approval.Unshift())
		if err != nil {
			step.abort()
			break
		}
		res, err = step.Resume(ctx, payload)
	}
	if err != nil {
		return StageFailed, err
	}
	f.result = res
	return StageDone, nil
}

func (p *Provider) ticket(f *flow, kind approval.Kind, params interface{}) *approval.Ticket {
	ctxData := make(map[string]interface{}, len(f.req.Context)+1)
	for k, v := range f.req.Context {
		ctxData[k] = v
	}
	ctxData["method"] = f.req.Method
	return &approval.Ticket{
		Kind:    kind,
		Origin:  f.req.Origin,
		Name:    f.req.Name,
		Icon:    f.req.Icon,
		Params:  params,
		Context: ctxData,
	}
}

// NextStep handler 需要再经过一轮审批 (例如硬件签名器确认)
type NextStep struct {
	Kind   approval.Kind
	Params interface{}
	// Resume 收到审批结果后继续执行，可以再次返回 NextStep
	Resume func(ctx context.Context, payload json.RawMessage) (any, error)
	// Abort 审批被拒绝时清理已占用的资源
	Abort func()
}

func (s *NextStep) abort() {
	if s.Abort != nil {
		s.Abort()
	}
}

func (s *NextStep) String() string {
	return fmt.Sprintf("next step %s", s.Kind)
}
