package watcher

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wallet-provider/pkg/monitor"

	"github.com/ethereum/go-ethereum/common"
)

// Kind watcher 类型
type Kind string

const (
	KindHash      Kind = "hash"      // 已知 hash，等待回执
	KindBroadcast Kind = "broadcast" // 只有中继 tracking id，等待解析出 hash
)

var (
	ErrAlreadyWatched = errors.New("transaction already has a watcher")
	ErrInvalidWatch   = errors.New("invalid watch")
)

// Watch 每笔已提交交易有且只有一个
type Watch struct {
	Kind       Kind
	RecordID   uint64 // model.PendingTransaction.ID
	Origin     string
	Address    common.Address
	ChainID    uint64
	Nonce      uint64
	Hash       common.Hash // KindHash
	TrackingID string      // KindBroadcast
	CreatedAt  time.Time
}

// Key hash watcher 以交易 hash 为键，broadcast watcher 以 tracking id 为键。
// 同一 nonce 的替换交易 hash 不同，各自有自己的 watcher
func (w Watch) Key() string {
	if w.Kind == KindBroadcast {
		return "broadcast:" + w.TrackingID
	}
	return "hash:" + strings.ToLower(w.Hash.Hex())
}

func (w Watch) sameSlot(o Watch) bool {
	return w.Address == o.Address && w.ChainID == o.ChainID && w.Nonce == o.Nonce
}

func (w Watch) validate() error {
	switch w.Kind {
	case KindHash:
		if w.Hash == (common.Hash{}) {
			return fmt.Errorf("%w: hash watch without hash", ErrInvalidWatch)
		}
	case KindBroadcast:
		if w.TrackingID == "" {
			return fmt.Errorf("%w: broadcast watch without tracking id", ErrInvalidWatch)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidWatch, w.Kind)
	}
	return nil
}

// Registry 内存中的 watcher 表
type Registry struct {
	mu       sync.Mutex
	byRecord map[uint64]Watch
	byKey    map[string]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		byRecord: make(map[uint64]Watch),
		byKey:    make(map[string]uint64),
	}
}

// Add 同一笔交易重复注册返回 ErrAlreadyWatched
func (r *Registry) Add(w Watch) error {
	if err := w.validate(); err != nil {
		return err
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byRecord[w.RecordID]; ok {
		return ErrAlreadyWatched
	}
	if _, ok := r.byKey[w.Key()]; ok {
		return ErrAlreadyWatched
	}
	r.byRecord[w.RecordID] = w
	r.byKey[w.Key()] = w.RecordID
	monitor.WatchersActive.WithLabelValues(string(w.Kind)).Inc()
	return nil
}

// ResolveBroadcast 把 broadcast watcher 换成 hash watcher，返回新的 watch
func (r *Registry) ResolveBroadcast(trackingID string, hash common.Hash) (Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey["broadcast:"+trackingID]
	if !ok {
		return Watch{}, false
	}
	old := r.byRecord[id]
	delete(r.byKey, old.Key())

	w := old
	w.Kind = KindHash
	w.Hash = hash
	w.TrackingID = ""
	r.byRecord[id] = w
	r.byKey[w.Key()] = id

	monitor.WatchersActive.WithLabelValues(string(KindBroadcast)).Dec()
	monitor.WatchersActive.WithLabelValues(string(KindHash)).Inc()
	return w, true
}

func (r *Registry) Remove(recordID uint64) (Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byRecord[recordID]
	if !ok {
		return Watch{}, false
	}
	delete(r.byRecord, recordID)
	delete(r.byKey, w.Key())
	monitor.WatchersActive.WithLabelValues(string(w.Kind)).Dec()
	return w, true
}

func (r *Registry) Get(recordID uint64) (Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byRecord[recordID]
	return w, ok
}

// List 按 RecordID 排序的快照
func (r *Registry) List() []Watch {
	r.mu.Lock()
	out := make([]Watch, 0, len(r.byRecord))
	for _, w := range r.byRecord {
		out = append(out, w)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

// Replaced 同一 (address, chain, nonce) 上的其他 watcher。
// 其中一笔上链后，其余的都不会再被打包
func (r *Registry) Replaced(w Watch) []Watch {
	r.mu.Lock()
	var out []Watch
	for id, o := range r.byRecord {
		if id != w.RecordID && o.sameSlot(w) {
			out = append(out, o)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

// Count kind 为空时统计全部
func (r *Registry) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == "" {
		return len(r.byRecord)
	}
	n := 0
	for _, w := range r.byRecord {
		if w.Kind == kind {
			n++
		}
	}
	return n
}
