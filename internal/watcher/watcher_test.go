package watcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"wallet-provider/internal/model"
	"wallet-provider/internal/notify"
	"wallet-provider/internal/relay"
	"wallet-provider/internal/store"
	"wallet-provider/pkg/utils/lock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

// receiptGateway 对给定 hash 返回回执，其余返回 null
type receiptGateway struct {
	mu       sync.Mutex
	receipts map[common.Hash]string // hash -> status
}

func (g *receiptGateway) Call(_ context.Context, _ uint64, method string, params json.RawMessage) (json.RawMessage, error) {
	var args []common.Hash
	_ = json.Unmarshal(params, &args)
	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.receipts[args[0]]; ok {
		return json.RawMessage(`{"transactionHash":"` + args[0].Hex() + `","status":"` + status + `","blockNumber":"0x1"}`), nil
	}
	return json.RawMessage("null"), nil
}

type fakeTracker map[string]relay.Status

func (f fakeTracker) Status(_ context.Context, id string) (relay.Status, error) {
	return f[id], nil
}

func newStore(t *testing.T) *store.PendingStore {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	return store.NewPendingStore(db)
}

func seed(t *testing.T, st *store.PendingStore, id string, nonce uint64, hash, tracking string) *model.PendingTransaction {
	t.Helper()
	rec := &model.PendingTransaction{
		SigningID: id, Address: alice.Hex(), ChainID: 1, Nonce: nonce,
		Hash: hash, TrackingID: tracking, PushKind: model.PushKindRelay,
		Origin: "https://a.xyz", Pending: true, Status: model.TxStatusPending,
	}
	require.NoError(t, st.Create(context.Background(), rec))
	return rec
}

func TestRegistryOneWatchPerTransaction(t *testing.T) {
	reg := NewRegistry()
	h := common.HexToHash("0x01")

	require.NoError(t, reg.Add(Watch{Kind: KindHash, RecordID: 1, Address: alice, ChainID: 1, Nonce: 0, Hash: h}))
	assert.ErrorIs(t, reg.Add(Watch{Kind: KindBroadcast, RecordID: 1, TrackingID: "t"}), ErrAlreadyWatched)
	// 相同 hash
	assert.ErrorIs(t, reg.Add(Watch{Kind: KindHash, RecordID: 2, Address: alice, ChainID: 1, Nonce: 0, Hash: h}), ErrAlreadyWatched)

	assert.ErrorIs(t, reg.Add(Watch{Kind: KindHash, RecordID: 3}), ErrInvalidWatch)
	assert.ErrorIs(t, reg.Add(Watch{Kind: KindBroadcast, RecordID: 3}), ErrInvalidWatch)

	require.NoError(t, reg.Add(Watch{Kind: KindBroadcast, RecordID: 4, Address: alice, ChainID: 1, Nonce: 1, TrackingID: "trk"}))
	assert.Equal(t, 1, reg.Count(KindHash))
	assert.Equal(t, 1, reg.Count(KindBroadcast))

	w, ok := reg.ResolveBroadcast("trk", common.HexToHash("0x02"))
	require.True(t, ok)
	assert.Equal(t, KindHash, w.Kind)
	assert.Equal(t, 2, reg.Count(KindHash))
	assert.Equal(t, 0, reg.Count(KindBroadcast))

	_, ok = reg.ResolveBroadcast("trk", common.HexToHash("0x02"))
	assert.False(t, ok)

	_, ok = reg.Remove(1)
	assert.True(t, ok)
	assert.Equal(t, 1, reg.Count(""))
}

func TestRegistrySameNonceReplacement(t *testing.T) {
	reg := NewRegistry()
	first := Watch{Kind: KindHash, RecordID: 1, Address: alice, ChainID: 1, Nonce: 5, Hash: common.HexToHash("0x01")}
	speedUp := Watch{Kind: KindHash, RecordID: 2, Address: alice, ChainID: 1, Nonce: 5, Hash: common.HexToHash("0x02")}
	other := Watch{Kind: KindHash, RecordID: 3, Address: alice, ChainID: 56, Nonce: 5, Hash: common.HexToHash("0x03")}

	require.NoError(t, reg.Add(first))
	require.NoError(t, reg.Add(speedUp))
	require.NoError(t, reg.Add(other))
	assert.Equal(t, 3, reg.Count(KindHash))

	replaced := reg.Replaced(speedUp)
	require.Len(t, replaced, 1)
	assert.Equal(t, uint64(1), replaced[0].RecordID)
}

func TestPollRetiresReplacedTransactions(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	reg := NewRegistry()
	rec := &notify.Recorder{}

	original := seed(t, st, "a", 5, common.HexToHash("0xa1").Hex(), "")
	speedUp := seed(t, st, "b", 5, common.HexToHash("0xa2").Hex(), "")
	n, err := Restore(ctx, reg, st)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	gw := &receiptGateway{receipts: map[common.Hash]string{common.HexToHash("0xa2"): "0x1"}}
	NewPoller(reg, gw, nil, st, rec, lock.NewMemoryLock(), "").Poll(ctx)

	assert.Equal(t, 0, reg.Count(""))
	assert.Equal(t, 1, rec.Count(notify.TransactionConfirmed))
	assert.Equal(t, 1, rec.Count(notify.TransactionFailed))

	got, err := st.FindByHash(ctx, common.HexToHash(speedUp.Hash))
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusConfirmed, got.Status)
	got, err = st.FindByHash(ctx, common.HexToHash(original.Hash))
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusFailed, got.Status)
	assert.False(t, got.Pending)
}

func TestPollConfirmsAndFails(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	reg := NewRegistry()
	rec := &notify.Recorder{}

	ok := seed(t, st, "a", 0, common.HexToHash("0xa1").Hex(), "")
	reverted := seed(t, st, "b", 1, common.HexToHash("0xb1").Hex(), "")
	waiting := seed(t, st, "c", 2, common.HexToHash("0xc1").Hex(), "")
	_, err := Restore(ctx, reg, st)
	require.NoError(t, err)
	require.Equal(t, 3, reg.Count(KindHash))

	gw := &receiptGateway{receipts: map[common.Hash]string{
		common.HexToHash("0xa1"): "0x1",
		common.HexToHash("0xb1"): "0x0",
	}}
	p := NewPoller(reg, gw, nil, st, rec, lock.NewMemoryLock(), "")
	p.Poll(ctx)

	_, found := reg.Get(ok.ID)
	assert.False(t, found)
	_, found = reg.Get(reverted.ID)
	assert.False(t, found)
	_, found = reg.Get(waiting.ID)
	assert.True(t, found)

	assert.Equal(t, 1, rec.Count(notify.TransactionConfirmed))
	assert.Equal(t, 1, rec.Count(notify.TransactionFailed))

	got, err := st.FindByHash(ctx, common.HexToHash("0xa1"))
	require.NoError(t, err)
	assert.Equal(t, model.TxStatusConfirmed, got.Status)
	assert.False(t, got.Pending)
}

func TestPollSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	reg := NewRegistry()
	seed(t, st, "a", 0, common.HexToHash("0xa1").Hex(), "")
	_, _ = Restore(ctx, reg, st)

	locker := lock.NewMemoryLock()
	_, held, _ := locker.Acquire(ctx, pollLockKey, 0)
	require.True(t, held)

	gw := &receiptGateway{receipts: map[common.Hash]string{common.HexToHash("0xa1"): "0x1"}}
	NewPoller(reg, gw, nil, st, notify.Nop{}, locker, "").Poll(ctx)
	assert.Equal(t, 1, reg.Count(KindHash))
}

func TestPollResolvesBroadcast(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	reg := NewRegistry()
	rec := &notify.Recorder{}
	resolved := seed(t, st, "a", 0, "", "trk-ok")
	dropped := seed(t, st, "b", 1, "", "trk-bad")
	_, _ = Restore(ctx, reg, st)
	require.Equal(t, 2, reg.Count(KindBroadcast))

	hash := common.HexToHash("0xfeed")
	tracker := fakeTracker{
		"trk-ok":  {TrackingID: "trk-ok", Hash: &hash},
		"trk-bad": {TrackingID: "trk-bad", Failed: true, Reason: "underpriced"},
	}
	p := NewPoller(reg, &receiptGateway{}, tracker, st, rec, lock.NewMemoryLock(), "")
	p.Poll(ctx)

	w, found := reg.Get(resolved.ID)
	require.True(t, found)
	assert.Equal(t, KindHash, w.Kind)
	assert.Equal(t, hash, w.Hash)

	_, found = reg.Get(dropped.ID)
	assert.False(t, found)
	assert.Equal(t, 1, rec.Count(notify.TransactionFailed))

	got, err := st.FindByTracking(ctx, "trk-ok")
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), got.Hash)
}

func TestConsumerHandle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	reg := NewRegistry()
	rec := seed(t, st, "a", 0, "", "trk-1")
	_, _ = Restore(ctx, reg, st)
	c := NewConsumer(reg, st, nil, "relay_events")

	assert.NoError(t, c.Handle(ctx, []byte("not json")))
	assert.NoError(t, c.Handle(ctx, []byte(`{"tracking_id":"unknown","hash":"0x00000000000000000000000000000000000000000000000000000000000000aa"}`)))

	require.NoError(t, c.Handle(ctx, []byte(`{"tracking_id":"trk-1","hash":"0x00000000000000000000000000000000000000000000000000000000000000bb"}`)))
	w, ok := reg.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, KindHash, w.Kind)
	assert.Equal(t, common.HexToHash("0xbb"), w.Hash)
}
