package watcher

import (
	"context"

	"wallet-provider/internal/store"
	"wallet-provider/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Restore 进程启动时根据 pending 记录重建 watcher
func Restore(ctx context.Context, reg *Registry, st *store.PendingStore) (int, error) {
	list, err := st.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range list {
		w := Watch{
			RecordID:  rec.ID,
			Origin:    rec.Origin,
			Address:   common.HexToAddress(rec.Address),
			ChainID:   rec.ChainID,
			Nonce:     rec.Nonce,
			CreatedAt: rec.CreatedAt,
		}
		if rec.Hash != "" {
			w.Kind = KindHash
			w.Hash = common.HexToHash(rec.Hash)
		} else {
			w.Kind = KindBroadcast
			w.TrackingID = rec.TrackingID
		}
		if err := reg.Add(w); err != nil {
			logger.Warn("skip pending transaction", zap.Uint64("id", rec.ID), zap.Error(err))
			continue
		}
		n++
	}
	logger.Info("watchers restored", zap.Int("count", n))
	return n, nil
}
