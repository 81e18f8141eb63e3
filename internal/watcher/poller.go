package watcher

import (
	"context"
	"errors"
	"strconv"
	"time"

	"wallet-provider/internal/gateway"
	"wallet-provider/internal/model"
	"wallet-provider/internal/notify"
	"wallet-provider/internal/relay"
	"wallet-provider/internal/store"
	"wallet-provider/pkg/logger"
	"wallet-provider/pkg/monitor"
	"wallet-provider/pkg/utils/lock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const pollLockKey = "watcher:poll"

// Poller 定时检查 watcher: hash watcher 查回执，broadcast watcher 向中继查询 hash
type Poller struct {
	reg      *Registry
	gw       gateway.Gateway
	tracker  relay.Tracker // 可为 nil，此时只依赖 MQ 回推
	store    *store.PendingStore
	notifier notify.Notifier
	locker   lock.DistributedLock

	cron     *cron.Cron
	schedule string
}

func NewPoller(reg *Registry, gw gateway.Gateway, tracker relay.Tracker, st *store.PendingStore,
	notifier notify.Notifier, locker lock.DistributedLock, schedule string) *Poller {
	if schedule == "" {
		schedule = "@every 5s"
	}
	return &Poller{
		reg:      reg,
		gw:       gw,
		tracker:  tracker,
		store:    st,
		notifier: notifier,
		locker:   locker,
		cron:     cron.New(),
		schedule: schedule,
	}
}

func (p *Poller) Start() error {
	if _, err := p.cron.AddFunc(p.schedule, func() { p.Poll(context.Background()) }); err != nil {
		return err
	}
	p.cron.Start()
	logger.Info("watcher poller started", zap.String("schedule", p.schedule))
	return nil
}

// Stop 等待正在执行的轮询结束
func (p *Poller) Stop() {
	<-p.cron.Stop().Done()
	logger.Info("watcher poller stopped")
}

// Poll 执行一轮检查
func (p *Poller) Poll(ctx context.Context) {
	// 1. 获取分布式锁，防止多实例同时轮询
	token, locked, err := p.locker.Acquire(ctx, pollLockKey, time.Minute)
	if err != nil || !locked {
		logger.Debug("watcher poll skipped: lock held elsewhere")
		return
	}
	defer p.locker.Release(context.Background(), pollLockKey, token)

	// 2. 逐个检查
	for _, w := range p.reg.List() {
		if ctx.Err() != nil {
			return
		}
		switch w.Kind {
		case KindHash:
			p.checkReceipt(ctx, w)
		case KindBroadcast:
			p.checkTracking(ctx, w)
		}
	}
}

func (p *Poller) checkReceipt(ctx context.Context, w Watch) {
	receipt, err := gateway.TransactionReceipt(ctx, p.gw, w.ChainID, w.Hash)
	if err != nil {
		logger.Warn("fetch receipt failed", zap.String("hash", w.Hash.Hex()), zap.Error(err))
		return
	}
	if receipt == nil {
		return
	}

	status := model.TxStatusConfirmed
	if !receipt.Succeeded() {
		status = model.TxStatusFailed
	}
	p.finish(ctx, w, status, "")

	// nonce 已被消耗，同 nonce 的其他提交作废
	for _, o := range p.reg.Replaced(w) {
		p.finish(ctx, o, model.TxStatusFailed, "replaced by "+w.Hash.Hex())
	}
}

func (p *Poller) checkTracking(ctx context.Context, w Watch) {
	if p.tracker == nil {
		return
	}
	st, err := p.tracker.Status(ctx, w.TrackingID)
	if err != nil {
		logger.Warn("relay status failed", zap.String("tracking_id", w.TrackingID), zap.Error(err))
		return
	}
	switch {
	case st.Failed:
		p.finish(ctx, w, model.TxStatusFailed, st.Reason)
	case st.Hash != nil:
		if err := Resolve(ctx, p.reg, p.store, w.TrackingID, *st.Hash); err != nil {
			logger.Error("resolve tracking id failed", zap.String("tracking_id", w.TrackingID), zap.Error(err))
		}
	}
}

// finish 交易到达终态: 更新记录、移除 watcher、发出通知
func (p *Poller) finish(ctx context.Context, w Watch, status, reason string) {
	if err := p.store.MarkStatus(ctx, w.RecordID, status); err != nil && !errors.Is(err, store.ErrTxNotFound) {
		logger.Error("mark transaction status failed", zap.Uint64("id", w.RecordID), zap.Error(err))
		return
	}
	p.reg.Remove(w.RecordID)

	chain := strconv.FormatUint(w.ChainID, 10)
	data := map[string]interface{}{
		"address":  w.Address.Hex(),
		"chain_id": w.ChainID,
		"nonce":    w.Nonce,
	}
	if w.Kind == KindHash {
		data["hash"] = w.Hash.Hex()
	} else {
		data["tracking_id"] = w.TrackingID
	}

	if status == model.TxStatusConfirmed {
		monitor.TxTotal.WithLabelValues(chain, "confirmed").Inc()
		p.notifier.Notify(ctx, notify.New(notify.TransactionConfirmed, w.Origin, data))
		logger.Info("transaction confirmed", zap.String("hash", w.Hash.Hex()), zap.Uint64("chain_id", w.ChainID))
		return
	}
	monitor.TxTotal.WithLabelValues(chain, "reverted").Inc()
	if reason != "" {
		data["reason"] = reason
	}
	p.notifier.Notify(ctx, notify.New(notify.TransactionFailed, w.Origin, data))
	logger.Warn("transaction failed on chain", zap.Uint64("id", w.RecordID), zap.String("reason", reason))
}

// Resolve 中继给出 tracking id 对应的 hash 后，更新记录并切换为 hash watcher
func Resolve(ctx context.Context, reg *Registry, st *store.PendingStore, trackingID string, hash common.Hash) error {
	if _, err := st.ResolveTracking(ctx, trackingID, hash); err != nil {
		return err
	}
	if _, ok := reg.ResolveBroadcast(trackingID, hash); !ok {
		logger.Warn("no broadcast watcher for tracking id", zap.String("tracking_id", trackingID))
		return nil
	}
	logger.Info("broadcast resolved", zap.String("tracking_id", trackingID), zap.String("hash", hash.Hex()))
	return nil
}
