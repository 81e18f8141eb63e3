package store

import (
	"context"
	"testing"

	"wallet-provider/internal/model"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *PendingStore {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	return NewPendingStore(db)
}

var alice = common.HexToAddress("0x9858EfFD232B4033E47d90003D41EC34EcaEda94")

func record(signingID string, nonce uint64, status string) *model.PendingTransaction {
	return &model.PendingTransaction{
		SigningID: signingID,
		Address:   alice.Hex(),
		ChainID:   1,
		Nonce:     nonce,
		PushKind:  model.PushKindRelay,
		Origin:    "https://a.xyz",
		Pending:   status == model.TxStatusPending,
		Status:    status,
	}
}

func TestHighestNonceIgnoresFailed(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, found, err := s.HighestNonce(ctx, alice, 1)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Create(ctx, record("a", 4, model.TxStatusConfirmed)))
	require.NoError(t, s.Create(ctx, record("b", 5, model.TxStatusPending)))
	require.NoError(t, s.Create(ctx, record("c", 9, model.TxStatusFailed)))

	n, found, err := s.HighestNonce(ctx, alice, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(5), n)

	_, found, _ = s.HighestNonce(ctx, alice, 56)
	assert.False(t, found)
}

func TestSigningIDIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Create(ctx, record("same", 1, model.TxStatusPending)))
	assert.Error(t, s.Create(ctx, record("same", 2, model.TxStatusPending)))
}

func TestResolveTrackingAndMarkStatus(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec := record("a", 1, model.TxStatusPending)
	rec.TrackingID = "trk-1"
	require.NoError(t, s.Create(ctx, rec))

	_, err := s.ResolveTracking(ctx, "nope", common.HexToHash("0x1"))
	assert.ErrorIs(t, err, ErrTxNotFound)

	hash := common.HexToHash("0xff")
	got, err := s.ResolveTracking(ctx, "trk-1", hash)
	require.NoError(t, err)
	assert.Equal(t, hash.Hex(), got.Hash)

	byHash, err := s.FindByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byHash.ID)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, s.MarkStatus(ctx, rec.ID, model.TxStatusConfirmed))
	pending, _ = s.ListPending(ctx)
	assert.Empty(t, pending)

	assert.ErrorIs(t, s.MarkStatus(ctx, 9999, model.TxStatusFailed), ErrTxNotFound)
}

func TestListByAddressOrdersByNonce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Create(ctx, record("b", 7, model.TxStatusPending)))
	require.NoError(t, s.Create(ctx, record("a", 6, model.TxStatusPending)))
	require.NoError(t, s.Create(ctx, record("c", 5, model.TxStatusConfirmed)))

	list, err := s.ListByAddress(ctx, alice, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(6), list[0].Nonce)
	assert.Equal(t, uint64(7), list[1].Nonce)

	_, err = s.FindByTracking(ctx, "missing")
	assert.ErrorIs(t, err, ErrTxNotFound)
}
