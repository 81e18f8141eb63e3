package txmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"wallet-provider/internal/chains"
	"wallet-provider/internal/gateway"
	"wallet-provider/internal/model"
	"wallet-provider/internal/notify"
	"wallet-provider/internal/relay"
	"wallet-provider/internal/signer"
	"wallet-provider/internal/store"
	"wallet-provider/internal/watcher"
	"wallet-provider/pkg/errno"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// defaultTip 只给了 maxFeePerGas 时使用的小费 (1.5 gwei)
var defaultTip = big.NewInt(1_500_000_000)

// SigningTransaction 已构建、等待签名的交易
type SigningTransaction struct {
	ID        string
	Origin    string
	From      common.Address
	ChainID   uint64
	Tx        *types.Transaction
	Explain   Explain
	Action    string
	State     State
	Submitted bool
	CreatedAt time.Time
}

// Signed 签名结果；签名器直接返回 hash 时 State 已经是 Submitted
type Signed struct {
	Tx     *SigningTransaction
	Signed *types.Transaction
	Raw    []byte
	Result *Result
}

// Result 提交结果，Hash 是返回给 dapp 的交易 hash
type Result struct {
	SigningID  string      `json:"signing_id"`
	State      State       `json:"state"`
	Hash       common.Hash `json:"hash"`
	TrackingID string      `json:"tracking_id,omitempty"`
	RecordID   uint64      `json:"record_id"`
}

// BuildRequest Account / ChainID 是执行时重新读取的当前账户和 origin 连接的链
type BuildRequest struct {
	Origin  string
	Params  TxParams
	Account common.Address
	ChainID uint64
}

type Deps struct {
	Gateway  gateway.Gateway
	Signer   signer.Signer
	Relay    relay.Relay
	Store    *store.PendingStore
	Watchers *watcher.Registry
	Notifier notify.Notifier
	Chains   *chains.Table
	StashTTL time.Duration
}

// Manager build -> sign -> submit -> track
type Manager struct {
	gw       gateway.Gateway
	signer   signer.Signer
	relay    relay.Relay
	store    *store.PendingStore
	watchers *watcher.Registry
	notifier notify.Notifier
	chains   *chains.Table
	stash    *Stash
}

func New(d Deps) *Manager {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	return &Manager{
		gw:       d.Gateway,
		signer:   d.Signer,
		relay:    d.Relay,
		store:    d.Store,
		watchers: d.Watchers,
		notifier: d.Notifier,
		chains:   d.Chains,
		stash:    NewStash(d.StashTTL),
	}
}

func (m *Manager) Stash() *Stash {
	return m.stash
}

// ValidateSender from 必须是当前账户，chainId (如果给出) 必须是 origin 连接的链
func ValidateSender(p TxParams, account common.Address, chainID uint64) error {
	if p.From != account {
		return errno.ErrInvalidParams.WithMessage("from should be same as current address")
	}
	if p.ChainID != nil && p.ChainID.ToInt().Cmp(new(big.Int).SetUint64(chainID)) != 0 {
		return errno.ErrInvalidParams.WithMessage("chainId should be same as current chainId")
	}
	return nil
}

// RecommendNonce 返回下一个可用的 nonce: max(链上 pending nonce, 本地最大 nonce + 1)
func (m *Manager) RecommendNonce(ctx context.Context, addr common.Address, chainID uint64) (uint64, error) {
	onChain, err := gateway.NonceAt(ctx, m.gw, chainID, addr)
	if err != nil {
		return 0, fmt.Errorf("query chain nonce: %w", err)
	}
	local, found, err := m.store.HighestNonce(ctx, addr, chainID)
	if err != nil {
		return 0, err
	}
	next := onChain
	if found && local+1 > next {
		next = local + 1
	}
	logger.Debug("nonce recommended",
		zap.String("address", addr.Hex()),
		zap.Uint64("chain_id", chainID),
		zap.Uint64("on_chain", onChain),
		zap.Uint64("next", next))
	return next, nil
}

// Build 校验参数、补全 nonce / gas，放入 stash
func (m *Manager) Build(ctx context.Context, req BuildRequest) (*SigningTransaction, error) {
	p := req.Params

	// 1. 重新校验，期间用户可能切换了账户或链
	if err := ValidateSender(p, req.Account, req.ChainID); err != nil {
		return nil, err
	}
	chain, err := m.chains.Lookup(req.ChainID)
	if err != nil {
		return nil, err
	}

	// 2. nonce
	var nonce uint64
	if p.Nonce != nil {
		nonce = uint64(*p.Nonce)
	} else if nonce, err = m.RecommendNonce(ctx, p.From, req.ChainID); err != nil {
		return nil, err
	}

	// 3. gas
	value := new(big.Int)
	if p.Value != nil {
		value = p.Value.ToInt()
	}
	var gas uint64
	if p.Gas != nil {
		gas = uint64(*p.Gas)
	} else {
		msg := gateway.CallMsg{From: p.From, To: p.To, Data: p.Payload()}
		if p.Value != nil {
			msg.Value = p.Value
		}
		if gas, err = gateway.EstimateGas(ctx, m.gw, req.ChainID, msg); err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	// 4. 费用
	chainID := new(big.Int).SetUint64(req.ChainID)
	var tx *types.Transaction
	var price *big.Int
	if p.MaxFeePerGas != nil {
		maxFee := p.MaxFeePerGas.ToInt()
		tip := new(big.Int).Set(defaultTip)
		if p.MaxPriorityFeePerGas != nil {
			tip = p.MaxPriorityFeePerGas.ToInt()
		}
		if tip.Cmp(maxFee) > 0 {
			tip = new(big.Int).Set(maxFee)
		}
		price = maxFee
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID: chainID, Nonce: nonce, GasTipCap: tip, GasFeeCap: maxFee,
			Gas: gas, To: p.To, Value: value, Data: p.Payload(),
		})
	} else {
		if p.GasPrice != nil {
			price = p.GasPrice.ToInt()
		} else if price, err = gateway.GasPrice(ctx, m.gw, req.ChainID); err != nil {
			return nil, fmt.Errorf("query gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce: nonce, GasPrice: price, Gas: gas, To: p.To, Value: value, Data: p.Payload(),
		})
	}

	// 5. explain
	balance, err := gateway.BalanceAt(ctx, m.gw, req.ChainID, p.From)
	if err != nil {
		logger.Warn("query balance failed", zap.String("address", p.From.Hex()), zap.Error(err))
		balance = nil
	}

	st := &SigningTransaction{
		ID:        uuid.NewString(),
		Origin:    req.Origin,
		From:      p.From,
		ChainID:   req.ChainID,
		Tx:        tx,
		Action:    p.Action(),
		Explain:   explain(p.Action(), chain.Symbol, gas, price, value, balance),
		State:     StateBuilt,
		CreatedAt: time.Now(),
	}
	m.stash.Put(st)

	logger.Info("transaction built",
		zap.String("id", st.ID),
		zap.String("origin", req.Origin),
		zap.Uint64("chain_id", req.ChainID),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))
	return st, nil
}

// Sign 从 stash 中取出交易并签名，同一个 id 只能签名一次
func (m *Manager) Sign(ctx context.Context, id string) (*Signed, error) {
	st, ok := m.stash.Take(id)
	if !ok {
		return nil, errno.ErrInvalidParams.WithMessage("signing transaction not found or already consumed")
	}
	if err := st.transition(StateSigning); err != nil {
		return nil, err
	}

	chainID := new(big.Int).SetUint64(st.ChainID)
	res, err := m.signer.SignTransaction(ctx, st.From, st.Tx, chainID)
	if err != nil {
		m.fail(ctx, st, err.Error())
		return nil, err
	}

	// 签名器已经广播，直接拿到 hash
	if res.Hash != nil {
		result, err := m.accept(ctx, st, *res.Hash, "", model.PushKindSigner)
		if err != nil {
			return nil, err
		}
		return &Signed{Tx: st, Result: result}, nil
	}
	if res.Signature == nil {
		m.fail(ctx, st, "empty signer response")
		return nil, errno.ErrSignerRejected.WithMessage("signer returned neither signature nor hash")
	}

	signed, raw, err := assemble(st, res.Signature, chainID)
	if err != nil {
		m.fail(ctx, st, err.Error())
		return nil, err
	}
	return &Signed{Tx: st, Signed: signed, Raw: raw}, nil
}

// Submit 推送到中继，根据结果登记交易记录和 watcher
func (m *Manager) Submit(ctx context.Context, s *Signed) (*Result, error) {
	if s.Result != nil {
		return s.Result, nil
	}
	st := s.Tx
	if st.State != StateSigning {
		return nil, fmt.Errorf("transaction %s is %s, cannot submit", st.ID, st.State)
	}

	res, err := m.relay.Submit(ctx, relay.SubmitRequest{
		ChainID: st.ChainID,
		From:    st.From,
		Nonce:   st.Tx.Nonce(),
		RawTx:   s.Raw,
	})
	if err != nil {
		m.fail(ctx, st, err.Error())
		return nil, errno.ErrSubmitFailed.WithMessagef("relay submit: %v", err)
	}
	if res.Failed() {
		m.fail(ctx, st, res.Reason)
		msg := "relay rejected transaction"
		if res.Reason != "" {
			msg = res.Reason
		}
		return nil, errno.ErrSubmitFailed.WithMessage(msg)
	}

	switch {
	case res.Hash != nil:
		return m.accept(ctx, st, *res.Hash, res.TrackingID, model.PushKindRelay)
	case res.TrackingID != "":
		return m.acceptTracking(ctx, st, res.TrackingID, s.Signed.Hash())
	default:
		// 中继受理但没有返回任何标识，用本地签名的 hash 跟踪
		return m.accept(ctx, st, s.Signed.Hash(), "", model.PushKindRelay)
	}
}

// SignAndSubmit Sign + Submit
func (m *Manager) SignAndSubmit(ctx context.Context, id string) (*Result, error) {
	signed, err := m.Sign(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Submit(ctx, signed)
}

// accept 已知 hash: 写记录 + hash watcher
func (m *Manager) accept(ctx context.Context, st *SigningTransaction, hash common.Hash, trackingID, pushKind string) (*Result, error) {
	if err := st.transition(StateSubmitted); err != nil {
		return nil, err
	}
	rec, err := m.record(ctx, st, hash.Hex(), trackingID, pushKind)
	if err != nil {
		return nil, err
	}
	if err := m.watch(ctx, watcher.Watch{Kind: watcher.KindHash, Hash: hash}, st, rec); err != nil {
		return nil, err
	}
	m.submitted(ctx, st, rec)
	return &Result{SigningID: st.ID, State: st.State, Hash: hash, TrackingID: trackingID, RecordID: rec.ID}, nil
}

// acceptTracking 只有 tracking id: 写记录 + broadcast watcher
func (m *Manager) acceptTracking(ctx context.Context, st *SigningTransaction, trackingID string, localHash common.Hash) (*Result, error) {
	if err := st.transition(StateAwaitingBroadcast); err != nil {
		return nil, err
	}
	rec, err := m.record(ctx, st, "", trackingID, model.PushKindRelay)
	if err != nil {
		return nil, err
	}
	if err := m.watch(ctx, watcher.Watch{Kind: watcher.KindBroadcast, TrackingID: trackingID}, st, rec); err != nil {
		return nil, err
	}
	m.submitted(ctx, st, rec)
	return &Result{SigningID: st.ID, State: st.State, Hash: localHash, TrackingID: trackingID, RecordID: rec.ID}, nil
}

func (m *Manager) record(ctx context.Context, st *SigningTransaction, hash, trackingID, pushKind string) (*model.PendingTransaction, error) {
	explainJSON, _ := json.Marshal(st.Explain)
	rec := &model.PendingTransaction{
		SigningID:  st.ID,
		Address:    st.From.Hex(),
		ChainID:    st.ChainID,
		Nonce:      st.Tx.Nonce(),
		Hash:       hash,
		TrackingID: trackingID,
		PushKind:   pushKind,
		Origin:     st.Origin,
		Action:     st.Action,
		Explain:    string(explainJSON),
		Pending:    true,
		Status:     model.TxStatusPending,
	}
	if err := m.store.Create(ctx, rec); err != nil {
		logger.Error("persist submitted transaction failed", zap.String("id", st.ID), zap.Error(err))
		return nil, err
	}
	st.Submitted = true
	return rec, nil
}

// watch 注册失败时把记录标记为失败，不留下没有 watcher 的 pending 记录
func (m *Manager) watch(ctx context.Context, w watcher.Watch, st *SigningTransaction, rec *model.PendingTransaction) error {
	w.RecordID = rec.ID
	w.Origin = st.Origin
	w.Address = st.From
	w.ChainID = st.ChainID
	w.Nonce = st.Tx.Nonce()
	err := m.watchers.Add(w)
	if err == nil {
		return nil
	}

	logger.Error("register watcher failed", zap.Uint64("record_id", rec.ID), zap.Error(err))
	if markErr := m.store.MarkStatus(ctx, rec.ID, model.TxStatusFailed); markErr != nil {
		logger.Error("mark unwatched transaction failed", zap.Uint64("record_id", rec.ID), zap.Error(markErr))
	}
	st.State = StateSubmitFailed
	st.Submitted = false
	m.fail(ctx, st, err.Error())
	return errno.ErrSubmitFailed.WithMessagef("track transaction: %v", err)
}

func (m *Manager) submitted(ctx context.Context, st *SigningTransaction, rec *model.PendingTransaction) {
	monitor.TxTotal.WithLabelValues(strconv.FormatUint(st.ChainID, 10), string(st.State)).Inc()
	m.notifier.Notify(ctx, notify.New(notify.TransactionSubmitted, st.Origin, map[string]interface{}{
		"signing_id":  st.ID,
		"address":     st.From.Hex(),
		"chain_id":    st.ChainID,
		"nonce":       rec.Nonce,
		"hash":        rec.Hash,
		"tracking_id": rec.TrackingID,
		"push_kind":   rec.PushKind,
	}))
	logger.Info("transaction submitted",
		zap.String("id", st.ID),
		zap.String("state", string(st.State)),
		zap.String("hash", rec.Hash),
		zap.String("tracking_id", rec.TrackingID))
}

// fail 签名或推送失败: 不写记录，不注册 watcher
func (m *Manager) fail(ctx context.Context, st *SigningTransaction, reason string) {
	if st.State.CanTransition(StateSubmitFailed) {
		st.State = StateSubmitFailed
	}
	monitor.TxTotal.WithLabelValues(strconv.FormatUint(st.ChainID, 10), string(StateSubmitFailed)).Inc()
	m.notifier.Notify(ctx, notify.New(notify.TransactionFailed, st.Origin, map[string]interface{}{
		"signing_id": st.ID,
		"address":    st.From.Hex(),
		"chain_id":   st.ChainID,
		"nonce":      st.Tx.Nonce(),
		"reason":     reason,
	}))
	logger.Warn("transaction failed", zap.String("id", st.ID), zap.String("reason", reason))
}

// assemble 归一化 v 后组装已签名交易，并确认签名者就是 from
func assemble(st *SigningTransaction, sig *signer.Signature, chainID *big.Int) (*types.Transaction, []byte, error) {
	recID, err := recoveryID(sig.V, chainID)
	if err != nil {
		return nil, nil, errno.ErrSignerRejected.WithMessage(err.Error())
	}
	if sig.R == nil || sig.S == nil || sig.R.BitLen() > 256 || sig.S.BitLen() > 256 {
		return nil, nil, errno.ErrSignerRejected.WithMessage("malformed signature")
	}

	raw := make([]byte, 65)
	sig.R.FillBytes(raw[:32])
	sig.S.FillBytes(raw[32:64])
	raw[64] = recID

	ethSigner := types.LatestSignerForChainID(chainID)
	signed, err := st.Tx.WithSignature(ethSigner, raw)
	if err != nil {
		return nil, nil, errno.ErrSignerRejected.WithMessagef("invalid signature: %v", err)
	}
	from, err := types.Sender(ethSigner, signed)
	if err != nil || from != st.From {
		return nil, nil, errno.ErrSignerRejected.WithMessage("signature does not match from address")
	}
	bin, err := signed.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return signed, bin, nil
}

// recoveryID 支持 0/1、27/28 和 EIP-155 (chainId*2 + 35/36)
func recoveryID(v *big.Int, chainID *big.Int) (byte, error) {
	if v == nil {
		return 0, fmt.Errorf("missing v")
	}
	id := new(big.Int).Set(v)
	switch {
	case id.Cmp(big.NewInt(35)) >= 0:
		id.Sub(id, big.NewInt(35))
		id.Sub(id, new(big.Int).Mul(chainID, big.NewInt(2)))
	case id.Cmp(big.NewInt(27)) >= 0:
		id.Sub(id, big.NewInt(27))
	}
	if id.Sign() < 0 || id.Cmp(big.NewInt(1)) > 0 {
		return 0, fmt.Errorf("invalid recovery id v=%s", v)
	}
	return byte(id.Uint64()), nil
}
