package txmanager

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"

	"wallet-provider/internal/chains"
	"wallet-provider/internal/model"
	"wallet-provider/internal/notify"
	"wallet-provider/internal/relay"
	"wallet-provider/internal/signer"
	"wallet-provider/internal/store"
	"wallet-provider/internal/watcher"
	"wallet-provider/pkg/config"
	"wallet-provider/pkg/errno"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var (
	alice = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

// chainGateway 固定返回的链上数据
type chainGateway struct {
	mu    sync.Mutex
	nonce uint64
	calls map[string]int
}

func (g *chainGateway) Call(_ context.Context, _ uint64, method string, _ json.RawMessage) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[method]++
	switch method {
	case "eth_getTransactionCount":
		return json.Marshal(hexutil.Uint64(g.nonce))
	case "eth_gasPrice":
		return json.RawMessage(`"0x3b9aca00"`), nil
	case "eth_estimateGas":
		return json.RawMessage(`"0x5208"`), nil
	case "eth_getBalance":
		return json.RawMessage(`"0xde0b6b3a7640000"`), nil
	}
	return nil, errors.New("unexpected method " + method)
}

type fakeRelay struct {
	result relay.SubmitResult
	err    error
	calls  int
	last   relay.SubmitRequest
}

func (r *fakeRelay) Submit(_ context.Context, req relay.SubmitRequest) (relay.SubmitResult, error) {
	r.calls++
	r.last = req
	return r.result, r.err
}

// hashSigner 签名的同时自行广播
type hashSigner struct {
	signer.Signer
	hash common.Hash
}

func (s hashSigner) SignTransaction(context.Context, common.Address, *types.Transaction, *big.Int) (signer.SignResult, error) {
	h := s.hash
	return signer.SignResult{Hash: &h}, nil
}

// failingSigner 签名阶段出错或返回空结果
type failingSigner struct {
	signer.Signer
	res signer.SignResult
	err error
}

func (s failingSigner) SignTransaction(context.Context, common.Address, *types.Transaction, *big.Int) (signer.SignResult, error) {
	return s.res, s.err
}

// rawHashRelay 以原始交易的 keccak 作为 hash 受理
type rawHashRelay struct {
	calls int
}

func (r *rawHashRelay) Submit(_ context.Context, req relay.SubmitRequest) (relay.SubmitResult, error) {
	r.calls++
	h := crypto.Keccak256Hash(req.RawTx)
	return relay.SubmitResult{Hash: &h, PushStatus: relay.PushAccepted}, nil
}

type env struct {
	m        *Manager
	gw       *chainGateway
	relay    *fakeRelay
	store    *store.PendingStore
	watchers *watcher.Registry
	events   *notify.Recorder
}

func newEnv(t *testing.T, sgn signer.Signer) *env {
	t.Helper()
	if sgn == nil {
		k, err := signer.NewHDKeyringFromMnemonic(testMnemonic, "pass", "", 1)
		require.NoError(t, err)
		require.NoError(t, k.Unlock("pass"))
		sgn = k
	}
	db, err := store.OpenMemory()
	require.NoError(t, err)
	table, err := chains.New([]config.ChainConfig{{ID: 1, Name: "Ethereum", Symbol: "ETH", RpcUrl: "http://node"}})
	require.NoError(t, err)

	e := &env{
		gw:       &chainGateway{nonce: 5},
		relay:    &fakeRelay{},
		store:    store.NewPendingStore(db),
		watchers: watcher.NewRegistry(),
		events:   &notify.Recorder{},
	}
	e.m = New(Deps{
		Gateway: e.gw, Signer: sgn, Relay: e.relay, Store: e.store,
		Watchers: e.watchers, Notifier: e.events, Chains: table,
	})
	return e
}

func (e *env) build(t *testing.T) *SigningTransaction {
	t.Helper()
	one := (*hexutil.Big)(big.NewInt(1))
	st, err := e.m.Build(context.Background(), BuildRequest{
		Origin:  "https://a.xyz",
		Params:  TxParams{From: alice, To: &bob, Value: one},
		Account: alice,
		ChainID: 1,
	})
	require.NoError(t, err)
	return st
}

func (e *env) records(t *testing.T) []model.PendingTransaction {
	t.Helper()
	list, err := e.store.ListByAddress(context.Background(), alice, 1)
	require.NoError(t, err)
	return list
}

func TestBuildValidatesSender(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.m.Build(ctx, BuildRequest{Params: TxParams{From: alice, To: &bob}, Account: bob, ChainID: 1})
	assert.ErrorIs(t, err, errno.ErrInvalidParams)
	assert.Equal(t, "from should be same as current address", err.Error())

	wrong := (*hexutil.Big)(big.NewInt(56))
	_, err = e.m.Build(ctx, BuildRequest{Params: TxParams{From: alice, To: &bob, ChainID: wrong}, Account: alice, ChainID: 1})
	assert.ErrorIs(t, err, errno.ErrInvalidParams)
	assert.Equal(t, "chainId should be same as current chainId", err.Error())

	assert.Equal(t, 0, e.m.Stash().Len())
	assert.Zero(t, e.gw.calls["eth_estimateGas"])
}

func TestBuildFillsDefaults(t *testing.T) {
	e := newEnv(t, nil)
	st := e.build(t)

	assert.Equal(t, StateBuilt, st.State)
	assert.Equal(t, uint64(5), st.Tx.Nonce())
	assert.Equal(t, uint64(21000), st.Tx.Gas())
	assert.Equal(t, types.LegacyTxType, int(st.Tx.Type()))
	assert.Equal(t, "send", st.Action)
	assert.Equal(t, "ETH", st.Explain.Symbol)
	assert.True(t, st.Explain.BalanceSufficient)
	assert.Equal(t, "0.000021", st.Explain.Fee.String())
	assert.Equal(t, 1, e.m.Stash().Len())
}

func TestBuildHonorsDappNonceAndFeeCaps(t *testing.T) {
	e := newEnv(t, nil)
	nonce := hexutil.Uint64(42)
	maxFee := (*hexutil.Big)(big.NewInt(3e9))
	p := TxParams{From: alice, To: &bob, Nonce: &nonce}.WithOverrides(Overrides{MaxFeePerGas: maxFee})

	st, err := e.m.Build(context.Background(), BuildRequest{Params: p, Account: alice, ChainID: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), st.Tx.Nonce())
	assert.Equal(t, types.DynamicFeeTxType, int(st.Tx.Type()))
	assert.Equal(t, int64(1_500_000_000), st.Tx.GasTipCap().Int64())
	assert.Zero(t, e.gw.calls["eth_getTransactionCount"])
}

func TestRecommendNonceBothDirections(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	// 本地没有记录
	n, err := e.m.RecommendNonce(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	// 本地领先 (排队中的交易)
	require.NoError(t, e.store.Create(ctx, &model.PendingTransaction{
		SigningID: "a", Address: alice.Hex(), ChainID: 1, Nonce: 8, PushKind: model.PushKindRelay, Origin: "o", Pending: true,
	}))
	n, err = e.m.RecommendNonce(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), n)

	// 链上领先 (其他客户端用同一私钥发过交易)
	e.gw.nonce = 20
	n, err = e.m.RecommendNonce(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), n)

	// 失败的本地交易不占用 nonce
	e.gw.nonce = 5
	require.NoError(t, e.store.Create(ctx, &model.PendingTransaction{
		SigningID: "b", Address: alice.Hex(), ChainID: 1, Nonce: 30, PushKind: model.PushKindRelay, Origin: "o", Status: model.TxStatusFailed,
	}))
	n, _ = e.m.RecommendNonce(ctx, alice, 1)
	assert.Equal(t, uint64(9), n)
}

func TestSignConsumesStashOnce(t *testing.T) {
	e := newEnv(t, nil)
	st := e.build(t)

	signed, err := e.m.Sign(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSigning, signed.Tx.State)
	assert.NotEmpty(t, signed.Raw)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed.Signed)
	require.NoError(t, err)
	assert.Equal(t, alice, from)

	_, err = e.m.Sign(context.Background(), st.ID)
	assert.ErrorIs(t, err, errno.ErrInvalidParams)
	assert.Equal(t, 0, e.m.Stash().Len())
}

func TestSubmitOutcomes(t *testing.T) {
	relayHash := common.HexToHash("0xabc")

	tests := []struct {
		name       string
		result     relay.SubmitResult
		err        error
		wantErr    bool
		wantState  State
		wantHash   int
		wantBcast  int
		wantRecord bool
	}{
		{name: "hash", result: relay.SubmitResult{Hash: &relayHash, PushStatus: relay.PushAccepted},
			wantState: StateSubmitted, wantHash: 1, wantRecord: true},
		{name: "tracking id only", result: relay.SubmitResult{TrackingID: "trk-1", PushStatus: relay.PushAccepted},
			wantState: StateAwaitingBroadcast, wantBcast: 1, wantRecord: true},
		{name: "accepted without ids", result: relay.SubmitResult{PushStatus: relay.PushAccepted},
			wantState: StateSubmitted, wantHash: 1, wantRecord: true},
		{name: "push failed", result: relay.SubmitResult{PushStatus: relay.PushFailed, Reason: "nonce too low"},
			wantErr: true, wantState: StateSubmitFailed},
		{name: "transport error", err: errors.New("connection refused"),
			wantErr: true, wantState: StateSubmitFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.relay.result, e.relay.err = tt.result, tt.err
			st := e.build(t)

			res, err := e.m.SignAndSubmit(context.Background(), st.ID)
			assert.Equal(t, tt.wantState, st.State)
			assert.Equal(t, 0, e.m.Stash().Len())
			assert.Equal(t, tt.wantHash, e.watchers.Count(watcher.KindHash))
			assert.Equal(t, tt.wantBcast, e.watchers.Count(watcher.KindBroadcast))
			assert.Equal(t, 1, e.relay.calls)
			assert.Equal(t, uint64(5), e.relay.last.Nonce)

			if tt.wantErr {
				assert.ErrorIs(t, err, errno.ErrSubmitFailed)
				assert.Nil(t, res)
				assert.Empty(t, e.records(t))
				assert.Equal(t, 1, e.events.Count(notify.TransactionFailed))
				assert.Equal(t, 0, e.events.Count(notify.TransactionSubmitted))
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, common.Hash{}, res.Hash)
			recs := e.records(t)
			require.Len(t, recs, 1)
			assert.True(t, recs[0].Pending)
			assert.Equal(t, st.ID, recs[0].SigningID)
			assert.Equal(t, 1, e.events.Count(notify.TransactionSubmitted))
		})
	}
}

func TestSignFailures(t *testing.T) {
	tests := []struct {
		name    string
		signer  failingSigner
		wantErr error
	}{
		{name: "locked", signer: failingSigner{err: signer.ErrLocked}, wantErr: errno.ErrSignerUnavailable},
		{name: "rejected on device", signer: failingSigner{err: errno.ErrSignerRejected.WithMessage("denied on device")}, wantErr: errno.ErrSignerRejected},
		{name: "empty response", signer: failingSigner{}, wantErr: errno.ErrSignerRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.signer)
			st := e.build(t)

			res, err := e.m.SignAndSubmit(context.Background(), st.ID)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Equal(t, StateSubmitFailed, st.State)
			assert.Equal(t, 0, e.m.Stash().Len())
			assert.Zero(t, e.relay.calls)
			assert.Empty(t, e.records(t))
			assert.Equal(t, 0, e.watchers.Count(""))
			assert.Equal(t, 1, e.events.Count(notify.TransactionFailed))
			assert.Equal(t, 0, e.events.Count(notify.TransactionSubmitted))
		})
	}
}

func TestSameNonceResubmissionIsWatched(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	r := &rawHashRelay{}
	e.m.relay = r

	nonce := hexutil.Uint64(5)
	var hashes []common.Hash
	for _, price := range []int64{1e9, 2e9} {
		p := TxParams{From: alice, To: &bob, Nonce: &nonce, GasPrice: (*hexutil.Big)(big.NewInt(price))}
		st, err := e.m.Build(ctx, BuildRequest{Params: p, Account: alice, ChainID: 1})
		require.NoError(t, err)
		res, err := e.m.SignAndSubmit(ctx, st.ID)
		require.NoError(t, err)
		hashes = append(hashes, res.Hash)
	}

	require.NotEqual(t, hashes[0], hashes[1])
	assert.Equal(t, 2, r.calls)
	recs := e.records(t)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, e.watchers.Count(watcher.KindHash))
	for _, rec := range recs {
		_, ok := e.watchers.Get(rec.ID)
		assert.True(t, ok, "record %d has no watcher", rec.ID)
	}
}

func TestDuplicateHashSubmitFails(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	dup := common.HexToHash("0xabc")
	e.relay.result = relay.SubmitResult{Hash: &dup, PushStatus: relay.PushAccepted}

	_, err := e.m.SignAndSubmit(ctx, e.build(t).ID)
	require.NoError(t, err)

	st := e.build(t)
	_, err = e.m.SignAndSubmit(ctx, st.ID)
	assert.ErrorIs(t, err, errno.ErrSubmitFailed)
	assert.Equal(t, StateSubmitFailed, st.State)

	// 只剩第一笔 pending，且有 watcher
	recs := e.records(t)
	require.Len(t, recs, 1)
	_, ok := e.watchers.Get(recs[0].ID)
	assert.True(t, ok)
	assert.Equal(t, 1, e.events.Count(notify.TransactionFailed))
}

func TestSignerReturnedHashSkipsRelay(t *testing.T) {
	hash := common.HexToHash("0xdead")
	e := newEnv(t, hashSigner{hash: hash})
	st := e.build(t)

	res, err := e.m.SignAndSubmit(context.Background(), st.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSubmitted, res.State)
	assert.Equal(t, hash, res.Hash)
	assert.Equal(t, 0, e.relay.calls)
	assert.Equal(t, 1, e.watchers.Count(watcher.KindHash))

	recs := e.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, model.PushKindSigner, recs[0].PushKind)
}

func TestRecoveryID(t *testing.T) {
	chainID := big.NewInt(56)
	tests := []struct {
		v       int64
		want    byte
		wantErr bool
	}{
		{0, 0, false},
		{1, 1, false},
		{27, 0, false},
		{28, 1, false},
		{56*2 + 35, 0, false},
		{56*2 + 36, 1, false},
		{2, 0, true},
		{29, 0, true},
	}
	for _, tt := range tests {
		got, err := recoveryID(big.NewInt(tt.v), chainID)
		if tt.wantErr {
			assert.Error(t, err, "v=%d", tt.v)
			continue
		}
		require.NoError(t, err, "v=%d", tt.v)
		assert.Equal(t, tt.want, got, "v=%d", tt.v)
	}
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateBuilt.CanTransition(StateSigning))
	assert.False(t, StateBuilt.CanTransition(StateSubmitted))
	assert.True(t, StateSigning.CanTransition(StateAwaitingBroadcast))
	assert.False(t, StateSubmitted.CanTransition(StateSigning))
	assert.True(t, StateSubmitFailed.Terminal())
	assert.False(t, StateSigning.Terminal())
}
